package model

import "time"

// User represents a registered user account.
//
// GitHub OAuth is the identity provider, so the primary external identifier
// is the GitHub user ID (an integer). We still generate our own internal
// string ID (xid) so primary keys aren't tied to a third party's numbering
// scheme. The UNIQUE constraint on github_id in the DB ensures one GitHub
// account maps to exactly one app account.
//
// Email is a plain string, not *string: GitHub returns the primary public
// email, which can be empty if the user has hidden it, and an empty string
// is simpler to work with than a nullable pointer.
type User struct {
	ID        string    `json:"id"`
	GitHubID  int64     `json:"githubId"`  // GitHub's numeric user ID
	Login     string    `json:"login"`     // GitHub username
	Email     string    `json:"email"`     // primary public email (may be empty)
	AvatarURL string    `json:"avatarUrl"` // profile picture URL
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
