package service

// AuthService is the business logic layer for authentication. It sits
// between the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// KEY RESPONSIBILITIES:
//   - Register and log in with email + password
//   - Password recovery through a security question
//   - Orchestrate the GitHub OAuth callback: upsert the user, issue a token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// validate checks single values (emails) in the service layer. Request
// bodies are checked by struct tags in the handler.
var validate = validator.New()

// TokenTTL holds the two session lengths: a normal login and one with
// "remember me" ticked.
type TokenTTL struct {
	Default  time.Duration
	Remember time.Duration
}

// AuthResult bundles the user record and the issued JWT so the handler can
// respond (or set the cookie) in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// RegisterInput is everything the registration form submits.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	ResetQuestion   string
	ResetAnswer     string
}

type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	ttl       TokenTTL
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
// Zero TTLs fall back to 24h and 7 days.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	ttl TokenTTL,
	logger *slog.Logger,
) *AuthService {
	if ttl.Default <= 0 {
		ttl.Default = 24 * time.Hour
	}
	if ttl.Remember <= 0 {
		ttl.Remember = 7 * 24 * time.Hour
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Register creates a password account and logs it in.
//
// Duplicate usernames and emails are checked up front for a friendly
// message; the UNIQUE indexes still catch a racing registration and the
// repository turns that into the same Conflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.ResetQuestion = strings.TrimSpace(in.ResetQuestion)

	if in.Username == "" || in.Email == "" || in.Password == "" ||
		in.ResetQuestion == "" || strings.TrimSpace(in.ResetAnswer) == "" {
		return nil, apperror.ValidationFailed("", "all fields are required")
	}
	if err := checkUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validate.Var(in.Email, "email"); err != nil {
		return nil, apperror.ValidationFailed("email", "email address is invalid")
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperror.ValidationFailed("confirmPassword", "passwords do not match")
	}
	if err := auth.CheckStrength(in.Password); err != nil {
		return nil, err
	}

	if err := s.ensureFree(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	passwordHash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	answerHash, err := s.passwords.Hash(auth.NormalizeAnswer(in.ResetAnswer))
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:        in.Username,
		Email:           in.Email,
		PasswordHash:    passwordHash,
		ResetQuestion:   in.ResetQuestion,
		ResetAnswerHash: answerHash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(ctx, user, s.ttl.Default)
}

// Login checks email and password. Unknown email and wrong password give
// the same error so the endpoint cannot be used to probe for accounts.
func (s *AuthService) Login(ctx context.Context, email, password string, remember bool) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("failed login", slog.String("userID", user.ID))
		return nil, apperror.Unauthorized("invalid email or password")
	}

	ttl := s.ttl.Default
	if remember {
		ttl = s.ttl.Remember
	}
	return s.issue(ctx, user, ttl)
}

// ResetQuestion returns the security question for an account.
func (s *AuthService) ResetQuestion(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	if user.ResetQuestion == "" {
		return "", apperror.NotFound("reset question", email)
	}
	return user.ResetQuestion, nil
}

// ResetPassword sets a new password when the security answer matches.
func (s *AuthService) ResetPassword(ctx context.Context, email, answer, newPassword, confirm string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}
	if user.ResetAnswerHash == "" {
		return apperror.NotFound("reset question", email)
	}
	if err := s.passwords.Verify(user.ResetAnswerHash, auth.NormalizeAnswer(answer)); err != nil {
		return apperror.Unauthorized("security answer is incorrect")
	}
	if newPassword != confirm {
		return apperror.ValidationFailed("confirmPassword", "passwords do not match")
	}
	if err := auth.CheckStrength(newPassword); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("service/auth: saving password: %w", err)
	}
	s.logger.Info("password reset", slog.String("userID", user.ID))
	return nil
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback.
//
// WHY UPSERT (not insert + check conflict)?
// GitHub guarantees the numeric id is stable, so the repository upserts on
// github_id: first login inserts, later logins refresh email and avatar.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.UpsertGitHub(ctx, gh.ID, gh.Login, gh.Email, gh.AvatarURL)
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	return s.issue(ctx, user, s.ttl.Default)
}

// issue signs the token and records the login time. A failed last_login
// write is logged but does not block the login.
func (s *AuthService) issue(ctx context.Context, user *model.User, ttl time.Duration) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, user.Role, ttl)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record last login",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLogin = &now
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) ensureFree(ctx context.Context, username, email string) error {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return apperror.Conflict("username is already taken")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: checking username: %w", err)
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return apperror.Conflict("email is already registered")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: checking email: %w", err)
	}
	return nil
}

func checkUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d-%d characters", MinUsernameLength, MaxUsernameLength))
	}
	if strings.ContainsAny(username, " \t\r\n/@") {
		return apperror.ValidationFailed("username", "username must not contain spaces, '/' or '@'")
	}
	return nil
}
