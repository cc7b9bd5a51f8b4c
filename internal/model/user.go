package model

import "time"

// ProfileVisibility controls whether a user's profile is shown to others.
type ProfileVisibility string

const (
	ProfilePublic  ProfileVisibility = "public"
	ProfilePrivate ProfileVisibility = "private"
)

// User is the password-free projection of an account. It is the only user
// shape that is ever serialized into an API response.
//
// GitHubID is set for accounts created (or linked) through GitHub sign-in.
type User struct {
	ID         string            `json:"id"                 db:"id"`
	Username   string            `json:"username"           db:"username"`
	Email      string            `json:"email"              db:"email"`
	Visibility ProfileVisibility `json:"visibility"         db:"visibility"`
	GitHubID   *int64            `json:"githubId,omitempty" db:"github_id"`
	CreatedAt  time.Time         `json:"createdAt"          db:"created_at"`
}

// UserWithPassword is the full account row, including the password hash.
// It never leaves the auth service; handlers only see User.
type UserWithPassword struct {
	User
	PasswordHash string `json:"-" db:"password_hash"`
}

// NewUser is the input to UserRepository.Create. PasswordHash is empty for
// accounts that only sign in through GitHub.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	GitHubID     *int64
}

// UserStatistics aggregates a user's activity.
type UserStatistics struct {
	Snippets      int `json:"nbSnippets"      db:"nb_snippets"`
	LikesReceived int `json:"nbLikesRecus"    db:"nb_likes_received"`
	Comments      int `json:"nbCommentaires"  db:"nb_comments"`
	LikesGiven    int `json:"nbLikesDonnes"   db:"nb_likes_given"`
}
