package model

import "time"

// User represents a registered user account.
//
// Accounts come from GitHub OAuth. GitHubID is the external identity; ID is
// a locally generated xid.
//
// IsPaid is the upgrade flag. Only a verified payment webhook ever sets it;
// nothing the browser sends can flip it.
type User struct {
	ID        string    `json:"id"        db:"id"`
	GitHubID  int64     `json:"githubId"  db:"github_id"` // GitHub's numeric user ID
	Login     string    `json:"login"     db:"login"`      // GitHub username
	Email     string    `json:"email"     db:"email"`      // Primary public email (may be empty)
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"` // Profile picture URL
	IsPaid    bool      `json:"isPaid"    db:"is_paid"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
