package sqldb

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

var _ repository.InteractionRepository = (*InteractionStore)(nil)

// InteractionStore persists likes and comments.
type InteractionStore struct {
	db *DB
}

func NewInteractionStore(db *DB) *InteractionStore {
	return &InteractionStore{db: db}
}

// Like records that userID likes snippetID. It returns false, not an error,
// when the like already exists: ON CONFLICT DO NOTHING covers the common
// case, and a unique violation raised by a concurrent insert is mapped to the
// same answer.
func (s *InteractionStore) Like(ctx context.Context, userID, snippetID string) (bool, error) {
	result, err := s.db.conn.ExecContext(ctx, s.db.conn.Rebind(
		`INSERT INTO likes (user_id, snippet_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`),
		userID, snippetID, now())
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		if isForeignKeyViolation(err) {
			return false, errAccountGone()
		}
		return false, fmt.Errorf("sqldb: liking snippet %s: %w", snippetID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	return n > 0, nil
}

// Unlike removes the like and reports whether one existed.
func (s *InteractionStore) Unlike(ctx context.Context, userID, snippetID string) (bool, error) {
	result, err := s.db.conn.ExecContext(ctx,
		s.db.conn.Rebind(`DELETE FROM likes WHERE user_id = ? AND snippet_id = ?`),
		userID, snippetID)
	if err != nil {
		return false, fmt.Errorf("sqldb: unliking snippet %s: %w", snippetID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *InteractionStore) HasLiked(ctx context.Context, userID, snippetID string) (bool, error) {
	var n int
	err := s.db.conn.GetContext(ctx, &n,
		s.db.conn.Rebind(`SELECT COUNT(*) FROM likes WHERE user_id = ? AND snippet_id = ?`),
		userID, snippetID)
	if err != nil {
		return false, fmt.Errorf("sqldb: checking like on snippet %s: %w", snippetID, err)
	}
	return n > 0, nil
}

func (s *InteractionStore) CountLikes(ctx context.Context, snippetID string) (int, error) {
	var n int
	err := s.db.conn.GetContext(ctx, &n,
		s.db.conn.Rebind(`SELECT COUNT(*) FROM likes WHERE snippet_id = ?`), snippetID)
	if err != nil {
		return 0, fmt.Errorf("sqldb: counting likes of snippet %s: %w", snippetID, err)
	}
	return n, nil
}

// ListLikers returns the users who liked the snippet, most recent like first.
func (s *InteractionStore) ListLikers(ctx context.Context, snippetID string) ([]model.Liker, error) {
	likers := []model.Liker{}
	err := s.db.conn.SelectContext(ctx, &likers, s.db.conn.Rebind(
		`SELECT u.id, u.username
		 FROM users u
		 JOIN likes l ON l.user_id = u.id
		 WHERE l.snippet_id = ?
		 ORDER BY l.created_at DESC, u.id DESC`), snippetID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing likers of snippet %s: %w", snippetID, err)
	}
	return likers, nil
}

// AddComment stores the comment as given. Trimming and emptiness checks are
// the caller's job.
func (s *InteractionStore) AddComment(ctx context.Context, userID, snippetID, content string) (*model.Comment, error) {
	comment := &model.Comment{
		ID:        xid.New().String(),
		UserID:    userID,
		SnippetID: snippetID,
		Content:   content,
		CreatedAt: now(),
	}

	_, err := s.db.conn.ExecContext(ctx, s.db.conn.Rebind(
		`INSERT INTO comments (id, user_id, snippet_id, content, created_at) VALUES (?, ?, ?, ?, ?)`),
		comment.ID, comment.UserID, comment.SnippetID, comment.Content, comment.CreatedAt)
	if isForeignKeyViolation(err) {
		return nil, errAccountGone()
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: adding comment to snippet %s: %w", snippetID, err)
	}

	return comment, nil
}

// ListComments returns the snippet's comments, newest first, each with its
// author's username.
func (s *InteractionStore) ListComments(ctx context.Context, snippetID string) ([]model.Comment, error) {
	comments := []model.Comment{}
	err := s.db.conn.SelectContext(ctx, &comments, s.db.conn.Rebind(
		`SELECT c.id, c.user_id, c.snippet_id, c.content, c.created_at, u.username
		 FROM comments c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.snippet_id = ?
		 ORDER BY c.created_at DESC, c.id DESC`), snippetID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing comments of snippet %s: %w", snippetID, err)
	}
	return comments, nil
}

// DeleteComment removes the comment only when requesterID wrote it.
func (s *InteractionStore) DeleteComment(ctx context.Context, commentID, requesterID string) (bool, error) {
	result, err := s.db.conn.ExecContext(ctx,
		s.db.conn.Rebind(`DELETE FROM comments WHERE id = ? AND user_id = ?`),
		commentID, requesterID)
	if err != nil {
		return false, fmt.Errorf("sqldb: deleting comment %s: %w", commentID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *InteractionStore) CountComments(ctx context.Context, snippetID string) (int, error) {
	var n int
	err := s.db.conn.GetContext(ctx, &n,
		s.db.conn.Rebind(`SELECT COUNT(*) FROM comments WHERE snippet_id = ?`), snippetID)
	if err != nil {
		return 0, fmt.Errorf("sqldb: counting comments of snippet %s: %w", snippetID, err)
	}
	return n, nil
}
