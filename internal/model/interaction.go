package model

import "time"

// Like records that a user liked a snippet. (UserID, SnippetID) is unique.
type Like struct {
	UserID    string    `json:"userId"    db:"user_id"`
	SnippetID string    `json:"snippetId" db:"snippet_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Liker is a user shown in the "liked by" list of a snippet.
type Liker struct {
	UserID   string `json:"id"       db:"id"`
	Username string `json:"username" db:"username"`
}

// Comment is a note left by a user on a snippet. Username is the author's
// display name and is only populated when comments are listed.
type Comment struct {
	ID        string    `json:"id"                 db:"id"`
	UserID    string    `json:"userId"             db:"user_id"`
	SnippetID string    `json:"snippetId"          db:"snippet_id"`
	Content   string    `json:"contenu"            db:"content"`
	Username  string    `json:"username,omitempty" db:"username"`
	CreatedAt time.Time `json:"createdAt"          db:"created_at"`
}
