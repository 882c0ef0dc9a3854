package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table.
type UserDB struct {
	db *DB
}

const userColumns = `id, username, email, password_hash, avatar, role, created_at,
	last_login, reset_question, reset_answer_hash, github_id`

// Create inserts a new user, filling in ID, CreatedAt and the avatar/role
// defaults. Username and email are UNIQUE; a collision becomes a Conflict
// naming the column so the service can return a precise message even when
// it lost a race after its own pre-check.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()
	if user.Avatar == "" {
		user.Avatar = model.DefaultAvatar
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err := u.db.conn.NamedExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, avatar, role, created_at,
		                    reset_question, reset_answer_hash, github_id)
		 VALUES (:id, :username, :email, :password_hash, :avatar, :role, :created_at,
		         :reset_question, :reset_answer_hash, :github_id)`,
		user,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateUser(err)
		}
		return fmt.Errorf("sqlite: creating user %q: %w", user.Username, err)
	}
	return nil
}

func duplicateUser(err error) *apperror.AppError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return apperror.Conflict("email is already registered")
	case strings.Contains(msg, "users.username"):
		return apperror.Conflict("username is already taken")
	default:
		return apperror.Conflict("user already exists")
	}
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getBy(ctx, "id", id)
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getBy(ctx, "email", email)
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getBy(ctx, "username", username)
}

// getBy is shared by the lookups above. column is always a constant from
// this file, never user input.
func (u *UserDB) getBy(ctx context.Context, column, value string) (*model.User, error) {
	var user model.User
	err := u.db.conn.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return &user, nil
}

// UpsertGitHub returns the account linked to githubID, creating it on first
// login. A new account takes the GitHub login as its username; when that
// name is already used by a password account a short suffix is appended.
// GitHub accounts have no password hash, so password login never matches.
func (u *UserDB) UpsertGitHub(ctx context.Context, githubID int64, login, email, avatar string) (*model.User, error) {
	var user model.User
	err := u.db.conn.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID)
	switch {
	case err == nil:
		if avatar != "" && avatar != user.Avatar {
			if _, err := u.db.conn.ExecContext(ctx,
				`UPDATE users SET avatar = ? WHERE id = ?`, avatar, user.ID); err != nil {
				return nil, fmt.Errorf("sqlite: updating github avatar for %s: %w", user.ID, err)
			}
			user.Avatar = avatar
		}
		return &user, nil
	case !isNoRows(err):
		return nil, fmt.Errorf("sqlite: looking up user by github_id %d: %w", githubID, err)
	}

	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", githubID, login)
	}
	user = model.User{
		Username: login,
		Email:    email,
		Avatar:   avatar,
		GitHubID: &githubID,
	}
	err = u.Create(ctx, &user)
	if err != nil && isConflict(err) {
		id := xid.New().String()
		user.Username = login + "-" + id[len(id)-6:]
		err = u.Create(ctx, &user)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile sets username and avatar. Empty values keep the current one.
func (u *UserDB) UpdateProfile(ctx context.Context, id, username, avatar string) error {
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users
		 SET username = COALESCE(NULLIF(?, ''), username),
		     avatar   = COALESCE(NULLIF(?, ''), avatar)
		 WHERE id = ?`,
		username, avatar, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateUser(err)
		}
		return fmt.Errorf("sqlite: updating profile %s: %w", id, err)
	}
	return requireAffected(res, "user", id)
}

func (u *UserDB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("sqlite: updating password %s: %w", id, err)
	}
	return requireAffected(res, "user", id)
}

func (u *UserDB) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: touching last_login %s: %w", id, err)
	}
	return requireAffected(res, "user", id)
}

// SetRole is used by csstoyctl to promote an account to admin.
func (u *UserDB) SetRole(ctx context.Context, username, role string) error {
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE username = ?`, role, username)
	if err != nil {
		return fmt.Errorf("sqlite: setting role for %q: %w", username, err)
	}
	return requireAffected(res, "user", username)
}
