// Package orchestrator drives one CLI invocation: load credentials, make
// sure there is a usable access token, publish, and record the result.
//
// The states are
//
//	Idle -> CredentialsLoaded -> {TokenValid | TokenRefreshNeeded | AuthorizationNeeded} -> Published | Failed
//
// A refresh that fails falls back to interactive authorization. Every other
// failure ends the invocation in Failed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexflint/linkedin-publisher/content"
	"github.com/alexflint/linkedin-publisher/credentials"
	"github.com/alexflint/linkedin-publisher/linkedin"
	"github.com/rs/zerolog"
)

// State is a step of the invocation
type State int

const (
	Idle State = iota
	CredentialsLoaded
	TokenValid
	TokenRefreshNeeded
	AuthorizationNeeded
	Published
	Failed
)

var stateNames = map[State]string{
	Idle:                "Idle",
	CredentialsLoaded:   "CredentialsLoaded",
	TokenValid:          "TokenValid",
	TokenRefreshNeeded:  "TokenRefreshNeeded",
	AuthorizationNeeded: "AuthorizationNeeded",
	Published:           "Published",
	Failed:              "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrAlreadyPosted is returned when publishing a unit the ledger already has
	ErrAlreadyPosted = errors.New("already posted")

	// ErrAuthorizationRequired is returned when a usable token can only be
	// obtained interactively and no prompter is available
	ErrAuthorizationRequired = errors.New("authorization required")

	// ErrNoRedirectURI is returned when authorization is needed but no redirect uri is configured
	ErrNoRedirectURI = errors.New("no redirect uri configured")
)

// CredentialStore is the only component that touches the credential file
type CredentialStore interface {
	Load() (*credentials.Credentials, error)
	Save(*credentials.Credentials) error
}

// Authorizer performs the OAuth grant
type Authorizer interface {
	BuildAuthorizationURL(scopes []string, redirectURI string) (*linkedin.AuthorizationRequest, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*linkedin.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*linkedin.Token, error)
}

// Identity looks up the member behind a token
type Identity interface {
	Member(ctx context.Context, accessToken string) (*linkedin.Member, error)
	VerifyIDToken(ctx context.Context, raw string) (string, error)
}

// Publisher creates posts
type Publisher interface {
	Publish(ctx context.Context, u *content.Unit, creds *credentials.Credentials) (*linkedin.Result, error)
}

// Ledger remembers what has been published
type Ledger interface {
	HasPosted(ctx context.Context, unitID int) (bool, error)
	Record(ctx context.Context, unitID int, postID string) error
}

// Prompter carries out the human part of authorization: it presents the
// authorization URL and blocks until the operator's browser comes back with
// a code, or the operator types one in
type Prompter interface {
	Authorize(ctx context.Context, req *linkedin.AuthorizationRequest) (string, error)
}

// Orchestrator wires the components together for one invocation. It is not
// safe for concurrent use.
type Orchestrator struct {
	Store         CredentialStore
	NewAuthorizer func(*credentials.Credentials) Authorizer
	NewIdentity   func(context.Context, *credentials.Credentials) (Identity, error) // optional
	Publisher     Publisher
	Ledger        Ledger
	Prompter      Prompter // nil disables interactive authorization

	Scopes       []string
	RedirectURI  string           // overrides the redirect uri from the credential file
	Now          func() time.Time // nil means time.Now
	OnTransition func(from, to State)

	state    State
	creds    *credentials.Credentials
	auth     Authorizer
	identity Identity
}

// State returns the current state
func (o *Orchestrator) State() State {
	return o.state
}

// Credentials returns the credentials as currently known
func (o *Orchestrator) Credentials() *credentials.Credentials {
	return o.creds
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) to(ctx context.Context, s State) {
	from := o.state
	o.state = s
	zerolog.Ctx(ctx).Debug().Str("from", from.String()).Str("to", s.String()).Msg("state transition")
	if o.OnTransition != nil {
		o.OnTransition(from, s)
	}
}

func (o *Orchestrator) fail(ctx context.Context, err error) error {
	o.to(ctx, Failed)
	return err
}

func (o *Orchestrator) redirectURI() string {
	if o.RedirectURI != "" {
		return o.RedirectURI
	}
	return o.creds.RedirectURI
}

func (o *Orchestrator) scopes() []string {
	if len(o.Scopes) > 0 {
		return o.Scopes
	}
	return linkedin.DefaultScopes
}

// Load reads the credentials. Failure here is always terminal.
func (o *Orchestrator) Load(ctx context.Context) error {
	if o.creds != nil {
		return nil
	}
	creds, err := o.Store.Load()
	if err != nil {
		return o.fail(ctx, err)
	}
	o.creds = creds
	o.auth = o.NewAuthorizer(creds)
	o.to(ctx, CredentialsLoaded)
	return nil
}

// EnsureToken leaves the orchestrator in TokenValid, refreshing the token or
// running interactive authorization as needed
func (o *Orchestrator) EnsureToken(ctx context.Context) error {
	return o.ensureToken(ctx, true)
}

func (o *Orchestrator) ensureToken(ctx context.Context, interactive bool) error {
	if err := o.Load(ctx); err != nil {
		return err
	}
	log := zerolog.Ctx(ctx)

	now := o.now()
	switch {
	case o.creds.Valid(now):
		o.to(ctx, TokenValid)
		return nil

	case o.creds.HasAccessToken() && o.creds.HasRefreshToken():
		o.to(ctx, TokenRefreshNeeded)
		tok, err := o.auth.Refresh(ctx, o.creds.RefreshToken)
		if err == nil {
			return o.applyToken(ctx, tok)
		}
		if !errors.Is(err, linkedin.ErrRefreshFailed) {
			return o.fail(ctx, err)
		}
		log.Warn().Err(err).Msg("refresh token was rejected, authorization is needed")
	}

	o.to(ctx, AuthorizationNeeded)
	if !interactive || o.Prompter == nil {
		return o.fail(ctx, ErrAuthorizationRequired)
	}
	return o.authorize(ctx)
}

// Authorize runs interactive authorization regardless of the current token
func (o *Orchestrator) Authorize(ctx context.Context) error {
	if err := o.Load(ctx); err != nil {
		return err
	}
	o.to(ctx, AuthorizationNeeded)
	if o.Prompter == nil {
		return o.fail(ctx, ErrAuthorizationRequired)
	}
	return o.authorize(ctx)
}

func (o *Orchestrator) authorize(ctx context.Context) error {
	redirectURI := o.redirectURI()
	if redirectURI == "" {
		return o.fail(ctx, fmt.Errorf("%w: set %s or pass --redirect-uri", ErrNoRedirectURI, credentials.KeyRedirectURI))
	}

	req, err := o.auth.BuildAuthorizationURL(o.scopes(), redirectURI)
	if err != nil {
		return o.fail(ctx, err)
	}

	code, err := o.Prompter.Authorize(ctx, req)
	if err != nil {
		return o.fail(ctx, fmt.Errorf("error waiting for authorization: %w", err))
	}

	// exchange with exactly the redirect uri the authorization url was built with
	tok, err := o.auth.ExchangeCode(ctx, code, req.RedirectURI)
	if err != nil {
		return o.fail(ctx, err)
	}
	return o.applyToken(ctx, tok)
}

// ExchangeCode trades a code obtained outside this process for a token
func (o *Orchestrator) ExchangeCode(ctx context.Context, code, redirectURI string) error {
	if err := o.Load(ctx); err != nil {
		return err
	}
	if configured := o.redirectURI(); configured != "" && configured != redirectURI {
		zerolog.Ctx(ctx).Warn().
			Str("configured", configured).
			Str("given", redirectURI).
			Msg("redirect uri differs from the configured one, linkedin will reject the code unless it matches the one used to authorize")
	}

	o.to(ctx, AuthorizationNeeded)
	tok, err := o.auth.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return o.fail(ctx, err)
	}
	return o.applyToken(ctx, tok)
}

// applyToken stores a freshly issued token and persists it
func (o *Orchestrator) applyToken(ctx context.Context, tok *linkedin.Token) error {
	log := zerolog.Ctx(ctx)

	next := *o.creds
	next.SetToken(tok.AccessToken, tok.RefreshToken, tok.ExpiresAt)

	if tok.IDToken != "" {
		if id, err := o.getIdentity(ctx); err != nil {
			log.Warn().Err(err).Msg("could not set up openid verification")
		} else if sub, err := id.VerifyIDToken(ctx, tok.IDToken); err != nil {
			log.Warn().Err(err).Msg("ignoring id token that failed verification")
		} else {
			next.PersonID = sub
		}
	}

	if err := o.Store.Save(&next); err != nil {
		return o.fail(ctx, err)
	}
	o.creds = &next

	ev := log.Info().Time("expires_at", tok.ExpiresAt)
	if tok.RefreshExpiresIn > 0 {
		ev = ev.Time("refresh_expires_at", o.now().Add(tok.RefreshExpiresIn).UTC())
	}
	ev.Msg("stored new access token")

	o.to(ctx, TokenValid)
	return nil
}

func (o *Orchestrator) getIdentity(ctx context.Context) (Identity, error) {
	if o.identity != nil {
		return o.identity, nil
	}
	if o.NewIdentity == nil {
		return nil, errors.New("no identity provider configured")
	}
	id, err := o.NewIdentity(ctx, o.creds)
	if err != nil {
		return nil, err
	}
	o.identity = id
	return id, nil
}

// Member returns the member that owns the current access token
func (o *Orchestrator) Member(ctx context.Context) (*linkedin.Member, error) {
	if err := o.ensureToken(ctx, false); err != nil {
		return nil, err
	}
	id, err := o.getIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return id.Member(ctx, o.creds.AccessToken)
}

// ensurePersonID looks up and stores the member id when it is not yet known.
// Failing to do so is not fatal because organization posts do not need it.
func (o *Orchestrator) ensurePersonID(ctx context.Context) {
	if o.creds.PersonID != "" || o.NewIdentity == nil {
		return
	}
	log := zerolog.Ctx(ctx)

	id, err := o.getIdentity(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not set up identity lookup")
		return
	}
	m, err := id.Member(ctx, o.creds.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("could not look up the member id, posting as a person is unavailable")
		return
	}

	next := *o.creds
	next.PersonID = m.ID
	if err := o.Store.Save(&next); err != nil {
		log.Warn().Err(err).Msg("could not store the member id")
		return
	}
	o.creds = &next
}

// Post publishes one unit. A unit already in the ledger is refused unless
// force is set.
func (o *Orchestrator) Post(ctx context.Context, u *content.Unit, force bool) (*linkedin.Result, error) {
	if err := o.Load(ctx); err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx).With().Int("post", u.ID).Logger()

	posted, err := o.Ledger.HasPosted(ctx, u.ID)
	if err != nil {
		return nil, o.fail(ctx, err)
	}
	if posted && !force {
		return nil, o.fail(ctx, fmt.Errorf("%w: post %d is in the ledger, use --force to post it again", ErrAlreadyPosted, u.ID))
	}
	if posted {
		log.Warn().Msg("post is already in the ledger, posting again because of --force")
	}

	if err := o.EnsureToken(ctx); err != nil {
		return nil, err
	}
	o.ensurePersonID(ctx)

	res, err := o.Publisher.Publish(ctx, u, o.creds)
	if err != nil {
		return res, o.fail(ctx, err)
	}

	if err := o.Ledger.Record(ctx, u.ID, res.PostID); err != nil {
		return res, o.fail(ctx, fmt.Errorf("post was published as %s but could not be recorded: %w", res.PostID, err))
	}

	o.to(ctx, Published)
	return res, nil
}
