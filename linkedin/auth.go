package linkedin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Endpoint is LinkedIn's OAuth2 authorization-code endpoint. LinkedIn wants
// the client credentials in the form body rather than in basic auth.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
	TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultScopes covers sign-in with OpenID plus posting as a member and as
// an organization
var DefaultScopes = []string{
	"openid",
	"profile",
	"email",
	"w_member_social",
	"w_organization_social",
}

// AuthorizationRequest is one attempt at the browser consent step. The
// state must come back unchanged on the redirect, and RedirectURI must be
// the one passed to ExchangeCode.
type AuthorizationRequest struct {
	URL         string
	Scopes      []string
	RedirectURI string
	State       string
}

// Token is the result of a code exchange or refresh
type Token struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	ExpiresAt        time.Time // zero if the provider gave no lifetime
	RefreshExpiresIn time.Duration
	Scope            string
	IDToken          string // present when the openid scope was granted
}

// Authorizer performs the three-legged authorization-code grant and token
// refresh against LinkedIn
type Authorizer struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	HTTPClient   *http.Client     // nil means http.DefaultClient
	Now          func() time.Time // nil means time.Now
}

// NewAuthorizer creates an authorizer for the given LinkedIn app
func NewAuthorizer(clientID, clientSecret string) *Authorizer {
	return &Authorizer{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     Endpoint,
	}
}

func (a *Authorizer) config(redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		Endpoint:     a.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}
}

func (a *Authorizer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Authorizer) context(ctx context.Context) context.Context {
	if a.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	return ctx
}

// NewState generates an unguessable state value
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// BuildAuthorizationURL builds the consent URL for a fresh state. It makes
// no network calls.
func (a *Authorizer) BuildAuthorizationURL(scopes []string, redirectURI string) (*AuthorizationRequest, error) {
	state, err := NewState()
	if err != nil {
		return nil, err
	}

	return &AuthorizationRequest{
		URL:         a.config(redirectURI, scopes).AuthCodeURL(state),
		Scopes:      scopes,
		RedirectURI: redirectURI,
		State:       state,
	}, nil
}

// ExchangeCode trades an authorization code for tokens. LinkedIn rejects
// the exchange unless redirectURI matches, byte for byte, both the URI
// registered for the app and the one used to build the authorization URL.
func (a *Authorizer) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	zerolog.Ctx(ctx).Debug().Str("redirect_uri", redirectURI).Msg("exchanging authorization code")

	tok, err := a.config(redirectURI, nil).Exchange(a.context(ctx), code)
	if err != nil {
		return nil, tokenError(ErrTokenExchangeFailed, err)
	}
	return a.convert(tok), nil
}

// Refresh mints a new access token from a refresh token. ErrRefreshFailed
// means the refresh token itself is no longer usable and the member has to
// authorize again.
func (a *Authorizer) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	zerolog.Ctx(ctx).Debug().Msg("refreshing access token")

	src := a.config("", nil).TokenSource(a.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError(ErrRefreshFailed, err)
	}

	t := a.convert(tok)
	if t.RefreshToken == "" {
		t.RefreshToken = refreshToken
	}
	return t, nil
}

func (a *Authorizer) convert(tok *oauth2.Token) *Token {
	t := Token{
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		ExpiresIn:        extraSeconds(tok, "expires_in"),
		RefreshExpiresIn: extraSeconds(tok, "refresh_token_expires_in"),
	}
	if s, ok := tok.Extra("scope").(string); ok {
		t.Scope = s
	}
	if s, ok := tok.Extra("id_token").(string); ok {
		t.IDToken = s
	}

	switch {
	case t.ExpiresIn > 0:
		t.ExpiresAt = a.now().Add(t.ExpiresIn).UTC()
	case !tok.Expiry.IsZero():
		t.ExpiresAt = tok.Expiry.UTC()
	}
	return &t
}

// extraSeconds reads a lifetime in seconds from the raw token response
func extraSeconds(tok *oauth2.Token, key string) time.Duration {
	var secs int64
	switch v := tok.Extra(key).(type) {
	case float64:
		secs = int64(v)
	case json.Number:
		secs, _ = v.Int64()
	case string:
		secs, _ = strconv.ParseInt(v, 10, 64)
	}
	return time.Duration(secs) * time.Second
}

// tokenError converts an error from the oauth2 package into a
// ProviderError or a transient APIError
func tokenError(kind error, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &APIError{Kind: ErrTransient, Err: err}
	}

	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &ProviderError{Kind: kind, Description: err.Error()}
	}

	pe := ProviderError{Kind: kind, Body: string(re.Body)}
	if re.Response != nil {
		pe.Status = re.Response.StatusCode
		if pe.Status >= 500 {
			return &APIError{Kind: ErrTransient, Status: pe.Status, Body: pe.Body}
		}
	}

	var body struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(re.Body, &body) == nil {
		pe.Code = body.Error
		pe.Description = body.Description
	}
	return &pe
}
