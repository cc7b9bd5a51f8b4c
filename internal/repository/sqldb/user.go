package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// userColumns is the password-free projection. Only FindByEmail reads
// password_hash.
const userColumns = `id, username, email, visibility, github_id, created_at`

type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new account. A UNIQUE failure on username, email or
// github_id comes back as apperror.ErrConflict; callers that want a specific
// message check EmailExists/UsernameExists first.
func (s *UserStore) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	user := &model.User{
		ID:         xid.New().String(),
		Username:   in.Username,
		Email:      in.Email,
		Visibility: model.ProfilePublic,
		GitHubID:   in.GitHubID,
		CreatedAt:  now(),
	}

	_, err := s.db.conn.ExecContext(ctx, s.db.conn.Rebind(
		`INSERT INTO users (id, username, email, password_hash, visibility, github_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Username,
		user.Email,
		in.PasswordHash,
		string(user.Visibility),
		user.GitHubID,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.ConflictMessage("email", "an account with this email or username already exists")
		}
		return nil, fmt.Errorf("sqldb: creating user: %w", err)
	}

	return user, nil
}

// FindByEmail returns the full record, password hash included.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.UserWithPassword, error) {
	var u model.UserWithPassword
	err := s.db.conn.GetContext(ctx, &u, s.db.conn.Rebind(
		`SELECT `+userColumns+`, password_hash FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting user by email: %w", err)
	}
	return &u, nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, "id = ?", id, id)
}

func (s *UserStore) FindByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return s.findOne(ctx, "github_id = ?", fmt.Sprint(githubID), githubID)
}

func (s *UserStore) findOne(ctx context.Context, where, label string, arg any) (*model.User, error) {
	var u model.User
	err := s.db.conn.GetContext(ctx, &u,
		s.db.conn.Rebind(`SELECT `+userColumns+` FROM users WHERE `+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", label)
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting user %s: %w", label, err)
	}
	return &u, nil
}

func (s *UserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "email = ?", email)
}

func (s *UserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "username = ?", username)
}

func (s *UserStore) exists(ctx context.Context, where string, arg any) (bool, error) {
	var n int
	err := s.db.conn.GetContext(ctx, &n,
		s.db.conn.Rebind(`SELECT COUNT(*) FROM users WHERE `+where), arg)
	if err != nil {
		return false, fmt.Errorf("sqldb: checking user existence: %w", err)
	}
	return n > 0, nil
}

// UpdateEmail changes the account email and returns the updated profile.
func (s *UserStore) UpdateEmail(ctx context.Context, id, email string) (*model.User, error) {
	result, err := s.db.conn.ExecContext(ctx,
		s.db.conn.Rebind(`UPDATE users SET email = ? WHERE id = ?`), email, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.ConflictMessage("email", "email already in use")
		}
		return nil, fmt.Errorf("sqldb: updating email of user %s: %w", id, err)
	}
	if err := expectOneRow(result, "user", id); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// UpdatePassword stores a new, already hashed, password.
func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.conn.ExecContext(ctx,
		s.db.conn.Rebind(`UPDATE users SET password_hash = ? WHERE id = ?`), passwordHash, id)
	if err != nil {
		return fmt.Errorf("sqldb: updating password of user %s: %w", id, err)
	}
	return expectOneRow(result, "user", id)
}

// Statistics counts the user's snippets, the likes those snippets received,
// the comments the user wrote and the likes the user gave.
func (s *UserStore) Statistics(ctx context.Context, id string) (*model.UserStatistics, error) {
	if _, err := s.FindByID(ctx, id); err != nil {
		return nil, err
	}

	var stats model.UserStatistics
	err := s.db.conn.GetContext(ctx, &stats, s.db.conn.Rebind(
		`SELECT
			(SELECT COUNT(*) FROM snippets WHERE user_id = ?) AS nb_snippets,
			(SELECT COUNT(*) FROM likes l JOIN snippets s ON s.id = l.snippet_id
			 WHERE s.user_id = ?) AS nb_likes_received,
			(SELECT COUNT(*) FROM comments WHERE user_id = ?) AS nb_comments,
			(SELECT COUNT(*) FROM likes WHERE user_id = ?) AS nb_likes_given`),
		id, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("sqldb: computing statistics of user %s: %w", id, err)
	}
	return &stats, nil
}

func expectOneRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
