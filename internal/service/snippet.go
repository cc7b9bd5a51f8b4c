// Package service contains the business rules of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)      → parses requests, writes responses
//	Service (business)  → authorization, orchestration, response shaping
//	Repository (data)   → SQL
//
// Services take repository interfaces, never a concrete store, so tests run
// against in-memory fakes and the SQL layer can change driver without any
// service noticing. They return apperror values; the handler maps them to
// HTTP status codes exactly once.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

const (
	DefaultPopularLimit = 10
	// tagFetchConcurrency bounds the TagsOf queries in flight for one listing.
	tagFetchConcurrency = 4
)

// SnippetService handles snippet reads and writes.
type SnippetService struct {
	snippets     repository.SnippetRepository
	interactions repository.InteractionRepository
	logger       *slog.Logger
}

func NewSnippetService(
	snippets repository.SnippetRepository,
	interactions repository.InteractionRepository,
	logger *slog.Logger,
) *SnippetService {
	return &SnippetService{
		snippets:     snippets,
		interactions: interactions,
		logger:       logger,
	}
}

// SnippetPage is one page of a paginated listing.
type SnippetPage struct {
	Snippets   []model.Snippet
	Page       repository.Page
	Total      int
	TotalPages int
}

// SnippetDetail is the full view of a single snippet.
type SnippetDetail struct {
	model.Snippet
	Comments []model.Comment `json:"commentaires"`
	Liked    bool            `json:"liked"`
}

// Create stores a snippet owned by ownerID and returns it with its tags.
func (s *SnippetService) Create(ctx context.Context, ownerID string, in model.NewSnippet) (*model.Snippet, error) {
	if ownerID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	snippet, err := s.snippets.Create(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}
	if snippet.Tags, err = s.snippets.TagsOf(ctx, snippet.ID); err != nil {
		return nil, fmt.Errorf("service/snippet: loading tags: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("owner", ownerID),
		slog.Int("tags", len(snippet.Tags)),
	)
	return snippet, nil
}

// Get returns the snippet with its tags, comments and whether the viewer has
// liked it. viewerID is empty for anonymous requests.
//
// A private snippet is Forbidden for everyone but its owner; an unknown id is
// NotFound.
func (s *SnippetService) Get(ctx context.Context, id, viewerID string) (*SnippetDetail, error) {
	snippet, err := s.snippets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !snippet.VisibleTo(viewerID) {
		return nil, apperror.Forbidden("this snippet is private")
	}

	detail := &SnippetDetail{Snippet: *snippet}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tags, err := s.snippets.TagsOf(gctx, id)
		detail.Tags = tags
		return err
	})
	g.Go(func() error {
		comments, err := s.interactions.ListComments(gctx, id)
		detail.Comments = comments
		return err
	})
	if viewerID != "" {
		g.Go(func() error {
			liked, err := s.interactions.HasLiked(gctx, viewerID, id)
			detail.Liked = liked
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/snippet: loading snippet %s: %w", id, err)
	}

	if detail.Comments == nil {
		detail.Comments = []model.Comment{}
	}
	return detail, nil
}

// ListPublic returns a page of public snippets, newest first.
func (s *SnippetService) ListPublic(ctx context.Context, page repository.Page) (*SnippetPage, error) {
	page = page.Normalize()

	snippets, total, err := s.snippets.ListPublic(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("service/snippet: listing: %w", err)
	}
	return s.paged(ctx, snippets, page, total)
}

// Search matches the term against title and description, case-insensitively,
// over public snippets.
func (s *SnippetService) Search(ctx context.Context, filter repository.SearchFilter, page repository.Page) (*SnippetPage, error) {
	page = page.Normalize()

	snippets, total, err := s.snippets.Search(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("service/snippet: searching: %w", err)
	}
	return s.paged(ctx, snippets, page, total)
}

// ListPopular returns the most liked public snippets.
func (s *SnippetService) ListPopular(ctx context.Context, limit int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}

	snippets, err := s.snippets.ListPopular(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/snippet: listing popular: %w", err)
	}
	if err := s.withTags(ctx, snippets); err != nil {
		return nil, err
	}
	return snippets, nil
}

// ListByUser lists a user's snippets. Private and unlisted ones are included
// only when the viewer is that user.
func (s *SnippetService) ListByUser(ctx context.Context, userID, viewerID string) ([]model.Snippet, error) {
	snippets, err := s.snippets.ListByUser(ctx, userID, userID == viewerID)
	if err != nil {
		return nil, fmt.Errorf("service/snippet: listing for user %s: %w", userID, err)
	}
	if err := s.withTags(ctx, snippets); err != nil {
		return nil, err
	}
	return snippets, nil
}

// Update applies a partial update. A snippet that is missing or belongs to
// someone else is reported as NotFound, so ids of private snippets are not
// confirmed to other users.
func (s *SnippetService) Update(ctx context.Context, id, requesterID string, patch model.SnippetPatch) (*model.Snippet, error) {
	snippet, err := s.snippets.Update(ctx, id, requesterID, patch)
	if err != nil {
		return nil, err
	}
	if snippet.Tags, err = s.snippets.TagsOf(ctx, id); err != nil {
		return nil, fmt.Errorf("service/snippet: loading tags: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", id))
	return snippet, nil
}

// Delete removes a snippet owned by requesterID.
func (s *SnippetService) Delete(ctx context.Context, id, requesterID string) error {
	removed, err := s.snippets.Delete(ctx, id, requesterID)
	if err != nil {
		return err
	}
	if !removed {
		return apperror.NotFound("snippet", id)
	}

	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

// PopularTags returns the tags used by the most snippets.
func (s *SnippetService) PopularTags(ctx context.Context, limit int) ([]model.Tag, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}

	tags, err := s.snippets.PopularTags(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/snippet: listing tags: %w", err)
	}
	return tags, nil
}

func (s *SnippetService) paged(ctx context.Context, snippets []model.Snippet, page repository.Page, total int) (*SnippetPage, error) {
	if err := s.withTags(ctx, snippets); err != nil {
		return nil, err
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	return &SnippetPage{
		Snippets:   snippets,
		Page:       page,
		Total:      total,
		TotalPages: page.TotalPages(total),
	}, nil
}

// withTags fills in Tags for every snippet. Each goroutine writes only its
// own element, so no locking is needed.
func (s *SnippetService) withTags(ctx context.Context, snippets []model.Snippet) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tagFetchConcurrency)

	for i := range snippets {
		g.Go(func() error {
			tags, err := s.snippets.TagsOf(gctx, snippets[i].ID)
			if err != nil {
				return err
			}
			snippets[i].Tags = tags
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("service/snippet: loading tags: %w", err)
	}
	return nil
}
