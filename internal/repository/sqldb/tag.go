package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/snipshare/internal/model"
)

// TAG BOOKKEEPING:
// tags.usage_count must always equal the number of snippet_tags rows pointing
// at the tag. The two are only ever changed together, inside the caller's
// transaction:
//
//	attach: ensure the tag row exists (usage 0), insert the link, and bump
//	        usage only if the link row was actually inserted.
//	detach: decrement every linked tag (never below zero), drop the links.
//
// Tag rows are kept when their count reaches zero; the table doubles as a
// popularity index.

// normalizeTags keeps the first MaxTagsPerSnippet names, trims and
// lower-cases them, and drops blanks and duplicates.
func normalizeTags(names []string) []string {
	if len(names) > model.MaxTagsPerSnippet {
		names = names[:model.MaxTagsPerSnippet]
	}

	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func attachTags(ctx context.Context, q DBTX, snippetID string, names []string) error {
	for _, name := range normalizeTags(names) {
		tagID, err := ensureTag(ctx, q, name)
		if err != nil {
			return err
		}

		result, err := q.ExecContext(ctx,
			q.Rebind(`INSERT INTO snippet_tags (snippet_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`),
			snippetID, tagID)
		if err != nil {
			return fmt.Errorf("sqldb: linking tag %q: %w", name, err)
		}
		linked, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqldb: checking rows affected: %w", err)
		}
		if linked == 0 {
			continue
		}

		if _, err := q.ExecContext(ctx,
			q.Rebind(`UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`), tagID); err != nil {
			return fmt.Errorf("sqldb: incrementing tag %q: %w", name, err)
		}
	}
	return nil
}

// ensureTag returns the id of the tag with the given (normalized) name,
// creating it with a zero usage count if needed.
func ensureTag(ctx context.Context, q DBTX, name string) (string, error) {
	_, err := q.ExecContext(ctx,
		q.Rebind(`INSERT INTO tags (id, name, usage_count, created_at) VALUES (?, ?, 0, ?)
		 ON CONFLICT (name) DO NOTHING`),
		xid.New().String(), name, now())
	if err != nil {
		return "", fmt.Errorf("sqldb: creating tag %q: %w", name, err)
	}

	var id string
	if err := q.GetContext(ctx, &id, q.Rebind(`SELECT id FROM tags WHERE name = ?`), name); err != nil {
		return "", fmt.Errorf("sqldb: looking up tag %q: %w", name, err)
	}
	return id, nil
}

func detachTags(ctx context.Context, q DBTX, snippetID string) error {
	_, err := q.ExecContext(ctx, q.Rebind(
		`UPDATE tags
		 SET usage_count = CASE WHEN usage_count > 0 THEN usage_count - 1 ELSE 0 END
		 WHERE id IN (SELECT tag_id FROM snippet_tags WHERE snippet_id = ?)`), snippetID)
	if err != nil {
		return fmt.Errorf("sqldb: decrementing tags of snippet %s: %w", snippetID, err)
	}

	if _, err := q.ExecContext(ctx,
		q.Rebind(`DELETE FROM snippet_tags WHERE snippet_id = ?`), snippetID); err != nil {
		return fmt.Errorf("sqldb: unlinking tags of snippet %s: %w", snippetID, err)
	}
	return nil
}

// TagsOf returns the names of the tags attached to the snippet, sorted by
// name. A snippet without tags yields an empty, non-nil slice.
func (s *SnippetStore) TagsOf(ctx context.Context, snippetID string) ([]string, error) {
	names := []string{}
	err := s.db.conn.SelectContext(ctx, &names, s.db.conn.Rebind(
		`SELECT t.name FROM tags t
		 JOIN snippet_tags st ON st.tag_id = t.id
		 WHERE st.snippet_id = ?
		 ORDER BY t.name`), snippetID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing tags of snippet %s: %w", snippetID, err)
	}
	return names, nil
}

// PopularTags returns the tags currently in use, most used first.
func (s *SnippetStore) PopularTags(ctx context.Context, limit int) ([]model.Tag, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}

	tags := make([]model.Tag, 0, limit)
	err := s.db.conn.SelectContext(ctx, &tags, s.db.conn.Rebind(
		`SELECT id, name, usage_count, created_at FROM tags
		 WHERE usage_count > 0
		 ORDER BY usage_count DESC, name ASC
		 LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing popular tags: %w", err)
	}
	return tags, nil
}
