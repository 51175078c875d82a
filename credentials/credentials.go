// Package credentials loads and persists LinkedIn OAuth credentials kept in
// a KEY=value env file.
package credentials

import "time"

// Credentials holds the OAuth client configuration and the current token
// state for one LinkedIn app.
type Credentials struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	OrganizationID string

	// PersonID is the subject of the authenticated member, used to build
	// urn:li:person authors. Empty until resolved.
	PersonID string

	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // zero when the provider did not say
}

// HasAccessToken reports whether an access token is present at all
func (c *Credentials) HasAccessToken() bool {
	return c.AccessToken != ""
}

// HasRefreshToken reports whether a refresh token is present
func (c *Credentials) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// Expired reports whether the access token has passed its expiry. A token
// with no known expiry is never considered expired.
func (c *Credentials) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Valid reports whether the access token can be used at time now
func (c *Credentials) Valid(now time.Time) bool {
	return c.HasAccessToken() && !c.Expired(now)
}

// SetToken replaces the token fields after an exchange or refresh
func (c *Credentials) SetToken(accessToken, refreshToken string, expiresAt time.Time) {
	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	c.ExpiresAt = expiresAt
}
