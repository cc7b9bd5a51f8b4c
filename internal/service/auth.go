package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

// AuthService owns accounts and sessions:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (argon2id)
//
// It never touches cookies or requests; the handler turns an AuthResult into
// a Set-Cookie header.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the freshly signed session token.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// RegisterInput is the already shape-validated registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

const invalidCredentials = "invalid email or password"

// NormalizeEmail is how emails are compared and stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs the user in.
//
// The existence checks give friendly per-field conflicts; the unique indexes
// still catch the race where two registrations interleave, and the store maps
// that to a conflict as well.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)

	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}
	if taken {
		return nil, apperror.ConflictMessage("email", "an account with this email already exists")
	}

	taken, err = s.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking username: %w", err)
	}
	if taken {
		return nil, apperror.ConflictMessage("username", "this username is already taken")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user, err := s.users.Create(ctx, model.NewUser{Username: username, Email: email, PasswordHash: hash})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return s.issue(user)
}

// Login checks the credentials. Unknown email and wrong password produce the
// same 401 and cost the same hashing work.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	account, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Burn(password)
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: finding user: %w", err)
	}

	// GitHub-only accounts have no password; that is expected, not corrupt.
	if account.PasswordHash == "" {
		s.passwords.Burn(password)
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	ok, err := s.passwords.Verify(account.PasswordHash, password)
	if err != nil {
		s.logger.Warn("stored password hash is unreadable",
			slog.String("userID", account.ID),
			slog.String("error", err.Error()),
		)
	}
	if !ok {
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	s.logger.Info("user logged in", slog.String("userID", account.ID))
	return s.issue(&account.User)
}

// LoginWithGitHub finds the account linked to the GitHub id or creates one.
//
// A new account takes the GitHub login as its username (with a numeric
// suffix when taken) and the GitHub email, falling back to the GitHub
// noreply address when the email is hidden or already used by another
// account. Existing email/password accounts are never linked implicitly.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.FindByGitHubID(ctx, gh.ID)
	if err == nil {
		s.logger.Info("user authenticated via GitHub", slog.String("userID", user.ID))
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: finding GitHub user %d: %w", gh.ID, err)
	}

	username, err := s.freeUsername(ctx, gh.Login)
	if err != nil {
		return nil, err
	}

	email := NormalizeEmail(gh.Email)
	if email != "" {
		taken, err := s.users.EmailExists(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("service/auth: checking email: %w", err)
		}
		if taken {
			email = ""
		}
	}
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}

	ghID := gh.ID
	user, err = s.users.Create(ctx, model.NewUser{Username: username, Email: email, GitHubID: &ghID})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

func (s *AuthService) freeUsername(ctx context.Context, login string) (string, error) {
	base := strings.TrimSpace(login)
	if base == "" {
		base = "github-user"
	}

	candidate := base
	for i := 2; i < 100; i++ {
		taken, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("service/auth: checking username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return "", apperror.ConflictMessage("username", "could not find a free username")
}

// Me returns the password-free profile of the signed-in user.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.users.FindByID(ctx, userID)
}

// UpdateEmail changes the account email. A new token is issued because the
// email is part of the session claims.
func (s *AuthService) UpdateEmail(ctx context.Context, userID, email string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	user, err := s.users.UpdateEmail(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user email changed", slog.String("userID", userID))
	return s.issue(user)
}

// UpdatePassword replaces the password after checking the current one.
// Accounts created through GitHub have no password yet and may set one
// without it.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	account, err := s.users.FindByEmail(ctx, user.Email)
	if err != nil {
		return err
	}

	if account.PasswordHash != "" {
		ok, err := s.passwords.Verify(account.PasswordHash, current)
		if err != nil || !ok {
			return apperror.Unauthorized("current password is incorrect")
		}
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.logger.Info("user password changed", slog.String("userID", userID))
	return nil
}

// Statistics returns the activity counters of any user.
func (s *AuthService) Statistics(ctx context.Context, userID string) (*model.UserStatistics, error) {
	return s.users.Statistics(ctx, userID)
}

// TokenExpiry is used by the handler for the cookie Max-Age.
func (s *AuthService) TokenExpiry() time.Duration {
	return s.tokens.Expiry()
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
