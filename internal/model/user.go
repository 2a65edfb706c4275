package model

import "time"

// User represents a registered account.
//
// An account is created by exactly one of: email + password sign-up, GitHub
// OAuth, or Google OAuth. GitHubID and GoogleID are zero/empty for accounts
// that never linked that provider. Email may be empty for GitHub users who
// hide their address.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email,omitempty"`
	DisplayName        string    `json:"displayName"`
	PhotoURL           string    `json:"photoUrl,omitempty"`
	Bio                string    `json:"bio"`
	PreferredLanguages []string  `json:"preferredLanguages"`
	GitHubID           int64     `json:"-"`
	GoogleID           string    `json:"-"`
	PasswordHash       string    `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Name returns the label shown next to the user's content.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
