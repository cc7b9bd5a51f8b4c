package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

var _ repository.SnippetRepository = (*SnippetStore)(nil)

// snippetColumns is the projection shared by every snippet read. like_count
// is computed from the likes table each time so it can never drift.
const snippetColumns = `s.id, s.user_id, s.title, s.language, s.code, s.description,
	s.visibility, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM likes l WHERE l.snippet_id = s.id) AS like_count`

// newestFirst orders listings by creation time. xid ids embed a timestamp
// and a counter, so they break ties between rows created in the same instant.
const newestFirst = ` ORDER BY s.created_at DESC, s.id DESC`

const DefaultPopularLimit = 10

// SnippetStore is the SQL implementation of repository.SnippetRepository.
// It also owns the tag bookkeeping, since tags only change as a side effect
// of snippet writes.
type SnippetStore struct {
	db *DB
}

func NewSnippetStore(db *DB) *SnippetStore {
	return &SnippetStore{db: db}
}

// Create inserts the snippet and attaches its tags in one transaction.
// Only the first five tag names are considered.
func (s *SnippetStore) Create(ctx context.Context, ownerID string, in model.NewSnippet) (*model.Snippet, error) {
	if err := validateNewSnippet(in); err != nil {
		return nil, err
	}

	ts := now()
	snippet := &model.Snippet{
		ID:          xid.New().String(),
		UserID:      ownerID,
		Title:       in.Title,
		Language:    in.Language,
		Code:        in.Code,
		Description: nullIfBlank(in.Description),
		Visibility:  in.Visibility,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	err := InTx(ctx, s.db.conn, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO snippets (id, user_id, title, language, code, description, visibility, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			snippet.ID,
			snippet.UserID,
			snippet.Title,
			snippet.Language,
			snippet.Code,
			snippet.Description,
			string(snippet.Visibility),
			snippet.CreatedAt,
			snippet.UpdatedAt,
		)
		if isForeignKeyViolation(err) {
			return errAccountGone()
		}
		if err != nil {
			return fmt.Errorf("sqldb: creating snippet: %w", err)
		}
		return attachTags(ctx, tx, snippet.ID, in.Tags)
	})
	if err != nil {
		return nil, err
	}

	return snippet, nil
}

// GetByID returns the snippet with its current like count, or
// apperror.ErrNotFound.
func (s *SnippetStore) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	return getSnippet(ctx, s.db.conn, id)
}

func getSnippet(ctx context.Context, q DBTX, id string) (*model.Snippet, error) {
	var snippet model.Snippet
	err := q.GetContext(ctx, &snippet,
		q.Rebind(`SELECT `+snippetColumns+` FROM snippets s WHERE s.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("snippet", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting snippet %s: %w", id, err)
	}
	return &snippet, nil
}

// ListPublic returns one page of public snippets, newest first, and the total
// number of public snippets.
func (s *SnippetStore) ListPublic(ctx context.Context, page repository.Page) ([]model.Snippet, int, error) {
	var where conditions
	where.add("s.visibility = ?", string(model.VisibilityPublic))
	return s.paginate(ctx, &where, page)
}

// Search matches public snippets whose title or description contains the
// term, ignoring case. An empty term matches everything; a non-empty
// language must match exactly.
func (s *SnippetStore) Search(ctx context.Context, filter repository.SearchFilter, page repository.Page) ([]model.Snippet, int, error) {
	var where conditions
	where.add("s.visibility = ?", string(model.VisibilityPublic))

	if term := strings.TrimSpace(filter.Term); term != "" {
		pattern := likePattern(term)
		where.add(`(`+s.db.lower("s.title")+` LIKE ? ESCAPE '\' OR `+s.db.lower("s.description")+` LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if lang := strings.TrimSpace(filter.Language); lang != "" {
		where.add("s.language = ?", lang)
	}

	return s.paginate(ctx, &where, page)
}

// paginate runs the count and the page query for the same predicate set.
func (s *SnippetStore) paginate(ctx context.Context, where *conditions, page repository.Page) ([]model.Snippet, int, error) {
	page = page.Normalize()
	clause, args := where.build()

	var total int
	if err := s.db.conn.GetContext(ctx, &total,
		s.db.conn.Rebind(`SELECT COUNT(*) FROM snippets s`+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("sqldb: counting snippets: %w", err)
	}

	query := `SELECT ` + snippetColumns + ` FROM snippets s` + clause + newestFirst + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), page.Size, page.Offset())

	snippets := make([]model.Snippet, 0, page.Size)
	if err := s.db.conn.SelectContext(ctx, &snippets, s.db.conn.Rebind(query), pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("sqldb: listing snippets: %w", err)
	}

	return snippets, total, nil
}

// ListByUser returns every snippet owned by userID, newest first. Unless
// includePrivate is set only public snippets are returned.
func (s *SnippetStore) ListByUser(ctx context.Context, userID string, includePrivate bool) ([]model.Snippet, error) {
	var where conditions
	where.add("s.user_id = ?", userID)
	if !includePrivate {
		where.add("s.visibility = ?", string(model.VisibilityPublic))
	}
	clause, args := where.build()

	snippets := []model.Snippet{}
	err := s.db.conn.SelectContext(ctx, &snippets,
		s.db.conn.Rebind(`SELECT `+snippetColumns+` FROM snippets s`+clause+newestFirst), args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing snippets of user %s: %w", userID, err)
	}
	return snippets, nil
}

// ListPopular returns the most liked public snippets; ties go to the newest.
func (s *SnippetStore) ListPopular(ctx context.Context, limit int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}

	snippets := make([]model.Snippet, 0, limit)
	err := s.db.conn.SelectContext(ctx, &snippets, s.db.conn.Rebind(
		`SELECT `+snippetColumns+` FROM snippets s
		 WHERE s.visibility = ?
		 ORDER BY like_count DESC, s.created_at DESC, s.id DESC
		 LIMIT ?`),
		string(model.VisibilityPublic), limit)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing popular snippets: %w", err)
	}
	return snippets, nil
}

// Update applies a partial update. Fields left nil in the patch are not
// written. A non-nil Tags replaces the whole tag set.
//
// The ownership check, the UPDATE and the tag replacement share one
// transaction. A snippet that does not exist and one owned by someone else
// both yield apperror.ErrNotFound, so callers cannot probe for other users'
// ids.
func (s *SnippetStore) Update(ctx context.Context, id, requesterID string, patch model.SnippetPatch) (*model.Snippet, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var updated *model.Snippet
	err := InTx(ctx, s.db.conn, func(tx *sqlx.Tx) error {
		if err := checkOwner(ctx, tx, id, requesterID); err != nil {
			return err
		}

		if !patch.Empty() {
			var set assignments
			if patch.Title != nil {
				set.set("title", *patch.Title)
			}
			if patch.Language != nil {
				set.set("language", *patch.Language)
			}
			if patch.Code != nil {
				set.set("code", *patch.Code)
			}
			if patch.Description != nil {
				set.set("description", nullIfBlank(patch.Description))
			}
			if patch.Visibility != nil {
				set.set("visibility", string(*patch.Visibility))
			}
			set.set("updated_at", now())

			cols, args := set.build()
			args = append(args, id)
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE snippets SET `+cols+` WHERE id = ?`), args...); err != nil {
				return fmt.Errorf("sqldb: updating snippet %s: %w", id, err)
			}
		}

		if patch.Tags != nil {
			if err := detachTags(ctx, tx, id); err != nil {
				return err
			}
			if err := attachTags(ctx, tx, id, *patch.Tags); err != nil {
				return err
			}
		}

		var err error
		updated, err = getSnippet(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes the snippet if requesterID owns it and reports whether a
// row was removed. Its tag links are detached first so every tag it held
// loses exactly one use.
func (s *SnippetStore) Delete(ctx context.Context, id, requesterID string) (bool, error) {
	removed := false
	err := InTx(ctx, s.db.conn, func(tx *sqlx.Tx) error {
		if err := checkOwner(ctx, tx, id, requesterID); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			return err
		}

		if err := detachTags(ctx, tx, id); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM snippets WHERE id = ? AND user_id = ?`), id, requesterID)
		if err != nil {
			return fmt.Errorf("sqldb: deleting snippet %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqldb: checking rows affected: %w", err)
		}
		removed = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	return removed, nil
}

// checkOwner returns apperror.ErrNotFound unless the snippet exists and
// belongs to requesterID.
func checkOwner(ctx context.Context, q DBTX, id, requesterID string) error {
	var owner string
	err := q.GetContext(ctx, &owner, q.Rebind(`SELECT user_id FROM snippets WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != requesterID) {
		return apperror.NotFound("snippet", id)
	}
	if err != nil {
		return fmt.Errorf("sqldb: checking owner of snippet %s: %w", id, err)
	}
	return nil
}

func validateNewSnippet(in model.NewSnippet) error {
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if strings.TrimSpace(in.Language) == "" {
		return apperror.ValidationFailed("language", "language is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return apperror.ValidationFailed("code", "code is required")
	}
	if !in.Visibility.Valid() {
		return apperror.ValidationFailed("visibility", "visibility must be one of public, private, unlisted")
	}
	return nil
}

func validatePatch(p model.SnippetPatch) error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Language != nil && strings.TrimSpace(*p.Language) == "" {
		return apperror.ValidationFailed("language", "language cannot be empty")
	}
	if p.Code != nil && strings.TrimSpace(*p.Code) == "" {
		return apperror.ValidationFailed("code", "code cannot be empty")
	}
	if p.Visibility != nil && !p.Visibility.Valid() {
		return apperror.ValidationFailed("visibility", "visibility must be one of public, private, unlisted")
	}
	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n < 3 || n > 255 {
		return apperror.ValidationFailed("title", "title must be between 3 and 255 characters")
	}
	return nil
}

// nullIfBlank maps an absent or whitespace-only description to NULL.
func nullIfBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
