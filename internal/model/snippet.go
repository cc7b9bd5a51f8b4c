// Package model defines the data structures used throughout the application.
package model

import "time"

// Visibility controls who can read a snippet.
//
//   - public:   listed, searchable, readable by anyone
//   - unlisted: readable by anyone who has the id, never listed
//   - private:  readable by the owner only
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
)

// Valid reports whether v is one of the known snippet visibilities.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityUnlisted:
		return true
	}
	return false
}

// MaxTagsPerSnippet is the number of tags a snippet may carry at any time.
const MaxTagsPerSnippet = 5

// Snippet represents a shared code snippet.
//
// LikeCount is derived from the likes table on every read; it is never stored.
// Tags is only filled in when the snippet is shaped for an API response.
type Snippet struct {
	ID          string     `json:"id"          db:"id"`
	UserID      string     `json:"userId"      db:"user_id"`
	Title       string     `json:"title"       db:"title"`
	Language    string     `json:"language"    db:"language"`
	Code        string     `json:"code"        db:"code"`
	Description *string    `json:"description" db:"description"`
	Visibility  Visibility `json:"visibility"  db:"visibility"`
	LikeCount   int        `json:"likeCount"   db:"like_count"`
	CreatedAt   time.Time  `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt"   db:"updated_at"`
	Tags        []string   `json:"tags"        db:"-"`
}

// VisibleTo reports whether the user with the given id (empty for anonymous
// requests) may read the snippet when addressing it by id.
func (s *Snippet) VisibleTo(userID string) bool {
	if s.Visibility == VisibilityPrivate {
		return userID != "" && userID == s.UserID
	}
	return true
}

// NewSnippet is the input to SnippetRepository.Create.
type NewSnippet struct {
	Title       string
	Language    string
	Code        string
	Description *string
	Visibility  Visibility
	Tags        []string
}

// SnippetPatch carries a partial update. A nil field is left untouched.
// A non-nil Tags replaces the whole tag set, even when it points to an empty
// slice.
type SnippetPatch struct {
	Title       *string
	Language    *string
	Code        *string
	Description *string
	Visibility  *Visibility
	Tags        *[]string
}

// Empty reports whether the patch would change nothing.
func (p SnippetPatch) Empty() bool {
	return p.Title == nil && p.Language == nil && p.Code == nil &&
		p.Description == nil && p.Visibility == nil && p.Tags == nil
}

// Tag is a shared, reference-counted label. UsageCount equals the number of
// snippets currently linked to it.
type Tag struct {
	ID         string    `json:"id"         db:"id"`
	Name       string    `json:"name"       db:"name"`
	UsageCount int       `json:"usageCount" db:"usage_count"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}
