package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

const MaxAvatarLength = 500

// UserService manages the signed-in user's own account.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *UserService {
	return &UserService{users: users, passwords: passwords, logger: logger}
}

// Profile returns the viewer's user record.
func (s *UserService) Profile(ctx context.Context, viewer auth.Identity) (*model.User, error) {
	if viewer.UserID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.users.GetByID(ctx, viewer.UserID)
}

// UpdateProfile changes username and/or avatar. Empty values keep the
// current ones; at least one must be supplied.
func (s *UserService) UpdateProfile(ctx context.Context, viewer auth.Identity, username, avatar string) (*model.User, error) {
	if viewer.UserID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	username = strings.TrimSpace(username)
	avatar = strings.TrimSpace(avatar)

	if username == "" && avatar == "" {
		return nil, apperror.ValidationFailed("", "nothing to update")
	}
	if username != "" {
		if err := checkUsername(username); err != nil {
			return nil, err
		}
		existing, err := s.users.GetByUsername(ctx, username)
		switch {
		case err == nil && existing.ID != viewer.UserID:
			return nil, apperror.Conflict("username is already taken")
		case err != nil && !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("checking username: %w", err)
		}
	}
	if len(avatar) > MaxAvatarLength {
		return nil, apperror.ValidationFailed("avatar",
			fmt.Sprintf("avatar must be %d characters or less", MaxAvatarLength))
	}

	if err := s.users.UpdateProfile(ctx, viewer.UserID, username, avatar); err != nil {
		if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	s.logger.Info("profile updated", slog.String("userID", viewer.UserID))
	return s.users.GetByID(ctx, viewer.UserID)
}

// ChangePassword verifies the old password before storing the new one.
func (s *UserService) ChangePassword(ctx context.Context, viewer auth.Identity, oldPassword, newPassword, confirm string) error {
	if viewer.UserID == "" {
		return apperror.Unauthorized("authentication required")
	}
	if oldPassword == "" || newPassword == "" || confirm == "" {
		return apperror.ValidationFailed("", "all fields are required")
	}
	if newPassword != confirm {
		return apperror.ValidationFailed("confirmPassword", "new passwords do not match")
	}
	if err := auth.CheckStrength(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, viewer.UserID)
	if err != nil {
		return err
	}
	if err := s.passwords.Verify(user.PasswordHash, oldPassword); err != nil {
		return apperror.Unauthorized("current password is incorrect")
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("saving password: %w", err)
	}
	s.logger.Info("password changed", slog.String("userID", user.ID))
	return nil
}

// Promote grants the admin role. Used by csstoyctl.
func (s *UserService) Promote(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}
	if err := s.users.SetRole(ctx, username, model.RoleAdmin); err != nil {
		return err
	}
	s.logger.Info("user promoted to admin", slog.String("username", username))
	return nil
}
