package auth

// PASSWORDS AND RESET ANSWERS:
// Both are stored as bcrypt hashes.
//
// WHY BCRYPT?
// bcrypt is deliberately slow, salts every hash, and stores salt and cost
// inside the hash string, so a single column is enough.
//
// Hash format:
//
//	$2a$10$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (10 rounds → 2^10 iterations)
//	 version

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sakif/csstoy/internal/apperror"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when configuration gives none.
const DefaultCost = 10

// MinPasswordLength is the shortest password accepted at registration and
// on password change.
const MinPasswordLength = 8

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected:
// production reads BCRYPT_COST, tests use bcrypt.MinCost (4) to stay fast.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService. Costs outside bcrypt's
// accepted range fall back to DefaultCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
//
// Returns an error if the plaintext is too long (>72 bytes, a bcrypt limit
// that would otherwise truncate silently).
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
//
// Returns nil if they match, a non-nil error if they don't. An empty hash
// (accounts created through GitHub) never matches.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return fmt.Errorf("auth: account has no password")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// NormalizeAnswer folds a password-reset answer so "Fluffy " and "fluffy"
// hash the same.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// CheckStrength enforces the password policy: at least MinPasswordLength
// characters with at least one letter and one digit.
func CheckStrength(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return apperror.ValidationFailed("password", "password must contain both letters and digits")
	}
	return nil
}
