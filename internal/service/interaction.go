package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

const MaxCommentLength = 2000

// InteractionService handles likes and comments. Every operation first checks
// that the snippet exists (404) and that the caller may see it (403).
type InteractionService struct {
	snippets     repository.SnippetRepository
	interactions repository.InteractionRepository
	logger       *slog.Logger
}

func NewInteractionService(
	snippets repository.SnippetRepository,
	interactions repository.InteractionRepository,
	logger *slog.Logger,
) *InteractionService {
	return &InteractionService{
		snippets:     snippets,
		interactions: interactions,
		logger:       logger,
	}
}

// LikeState is the result of a toggle.
type LikeState struct {
	Liked bool `json:"liked"`
	Likes int  `json:"nbLikes"`
}

// ToggleLike likes the snippet if the user has not liked it yet and unlikes
// it otherwise, then reports the new state and count.
//
// Two concurrent toggles by the same user may both read the same state; the
// store's primary key keeps the like table consistent either way and the
// returned count is always read after the write.
func (s *InteractionService) ToggleLike(ctx context.Context, userID, snippetID string) (*LikeState, error) {
	if _, err := s.viewable(ctx, snippetID, userID); err != nil {
		return nil, err
	}

	liked, err := s.interactions.HasLiked(ctx, userID, snippetID)
	if err != nil {
		return nil, fmt.Errorf("service/interaction: reading like: %w", err)
	}

	if liked {
		_, err = s.interactions.Unlike(ctx, userID, snippetID)
	} else {
		_, err = s.interactions.Like(ctx, userID, snippetID)
	}
	if err != nil {
		return nil, fmt.Errorf("service/interaction: toggling like: %w", err)
	}

	count, err := s.interactions.CountLikes(ctx, snippetID)
	if err != nil {
		return nil, fmt.Errorf("service/interaction: counting likes: %w", err)
	}

	return &LikeState{Liked: !liked, Likes: count}, nil
}

// ListLikers returns who liked the snippet, most recent first.
func (s *InteractionService) ListLikers(ctx context.Context, snippetID, viewerID string) ([]model.Liker, error) {
	if _, err := s.viewable(ctx, snippetID, viewerID); err != nil {
		return nil, err
	}

	likers, err := s.interactions.ListLikers(ctx, snippetID)
	if err != nil {
		return nil, fmt.Errorf("service/interaction: listing likers: %w", err)
	}
	return likers, nil
}

// AddComment stores a trimmed, non-empty comment.
func (s *InteractionService) AddComment(ctx context.Context, userID, snippetID, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("contenu", "comment must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, apperror.ValidationFailed("contenu",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	if _, err := s.viewable(ctx, snippetID, userID); err != nil {
		return nil, err
	}

	comment, err := s.interactions.AddComment(ctx, userID, snippetID, content)
	if err != nil {
		return nil, fmt.Errorf("service/interaction: adding comment: %w", err)
	}

	s.logger.Info("comment added",
		slog.String("id", comment.ID),
		slog.String("snippet", snippetID),
	)
	return comment, nil
}

// ListComments returns the comments of a snippet, newest first.
func (s *InteractionService) ListComments(ctx context.Context, snippetID, viewerID string) ([]model.Comment, error) {
	if _, err := s.viewable(ctx, snippetID, viewerID); err != nil {
		return nil, err
	}

	comments, err := s.interactions.ListComments(ctx, snippetID)
	if err != nil {
		return nil, fmt.Errorf("service/interaction: listing comments: %w", err)
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	return comments, nil
}

// DeleteComment removes a comment written by requesterID. Someone else's
// comment is reported as NotFound.
func (s *InteractionService) DeleteComment(ctx context.Context, commentID, requesterID string) error {
	removed, err := s.interactions.DeleteComment(ctx, commentID, requesterID)
	if err != nil {
		return fmt.Errorf("service/interaction: deleting comment: %w", err)
	}
	if !removed {
		return apperror.NotFound("comment", commentID)
	}

	s.logger.Info("comment deleted", slog.String("id", commentID))
	return nil
}

func (s *InteractionService) viewable(ctx context.Context, snippetID, userID string) (*model.Snippet, error) {
	snippet, err := s.snippets.GetByID(ctx, snippetID)
	if err != nil {
		return nil, err
	}
	if !snippet.VisibleTo(userID) {
		return nil, apperror.Forbidden("this snippet is private")
	}
	return snippet, nil
}
