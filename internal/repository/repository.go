// Package repository declares the storage contracts the services depend on.
//
// The interfaces live here, away from any driver, so the service layer can be
// tested against hand-written fakes and the SQL implementation in
// repository/sqldb can be swapped without touching callers.
package repository

import (
	"context"

	"github.com/sakif/snipshare/internal/model"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// Page selects a window of an ordered listing. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page to valid bounds: Number below 1 becomes 1, a
// missing Size becomes DefaultPageSize and anything above MaxPageSize is capped.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows to skip for a normalized page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// TotalPages returns ceil(total / size).
func (p Page) TotalPages(total int) int {
	if p.Size <= 0 {
		return 0
	}
	return (total + p.Size - 1) / p.Size
}

// SearchFilter narrows a snippet search. An empty Term matches every public
// snippet; an empty Language applies no language restriction.
type SearchFilter struct {
	Term     string
	Language string
}

type SnippetRepository interface {
	Create(ctx context.Context, ownerID string, in model.NewSnippet) (*model.Snippet, error)
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	ListPublic(ctx context.Context, page Page) ([]model.Snippet, int, error)
	ListByUser(ctx context.Context, userID string, includePrivate bool) ([]model.Snippet, error)
	Search(ctx context.Context, filter SearchFilter, page Page) ([]model.Snippet, int, error)
	Update(ctx context.Context, id, requesterID string, patch model.SnippetPatch) (*model.Snippet, error)
	Delete(ctx context.Context, id, requesterID string) (bool, error)
	ListPopular(ctx context.Context, limit int) ([]model.Snippet, error)
	TagsOf(ctx context.Context, snippetID string) ([]string, error)
	PopularTags(ctx context.Context, limit int) ([]model.Tag, error)
}

type InteractionRepository interface {
	Like(ctx context.Context, userID, snippetID string) (bool, error)
	Unlike(ctx context.Context, userID, snippetID string) (bool, error)
	HasLiked(ctx context.Context, userID, snippetID string) (bool, error)
	CountLikes(ctx context.Context, snippetID string) (int, error)
	ListLikers(ctx context.Context, snippetID string) ([]model.Liker, error)

	AddComment(ctx context.Context, userID, snippetID, content string) (*model.Comment, error)
	ListComments(ctx context.Context, snippetID string) ([]model.Comment, error)
	DeleteComment(ctx context.Context, commentID, requesterID string) (bool, error)
	CountComments(ctx context.Context, snippetID string) (int, error)
}

// UserRepository stores accounts. Password hashing happens in the service
// layer; the repository only ever sees the finished hash.
type UserRepository interface {
	Create(ctx context.Context, in model.NewUser) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.UserWithPassword, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateEmail(ctx context.Context, id, email string) (*model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Statistics(ctx context.Context, id string) (*model.UserStatistics, error)
}
