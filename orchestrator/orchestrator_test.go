package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexflint/linkedin-publisher/content"
	"github.com/alexflint/linkedin-publisher/credentials"
	"github.com/alexflint/linkedin-publisher/linkedin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	creds   credentials.Credentials
	loadErr error
	saves   []credentials.Credentials
}

func (s *fakeStore) Load() (*credentials.Credentials, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	c := s.creds
	return &c, nil
}

func (s *fakeStore) Save(c *credentials.Credentials) error {
	s.saves = append(s.saves, *c)
	s.creds = *c
	return nil
}

type fakeAuth struct {
	refreshTok   *linkedin.Token
	refreshErr   error
	refreshCalls int

	exchangeTok *linkedin.Token
	exchangeErr error
	exchanges   []string // redirect uris sent with each exchange

	built []string // redirect uris used to build authorization urls
}

func (a *fakeAuth) BuildAuthorizationURL(scopes []string, redirectURI string) (*linkedin.AuthorizationRequest, error) {
	a.built = append(a.built, redirectURI)
	return &linkedin.AuthorizationRequest{
		URL:         "https://www.linkedin.com/oauth/v2/authorization?state=st8",
		Scopes:      scopes,
		RedirectURI: redirectURI,
		State:       "st8",
	}, nil
}

func (a *fakeAuth) ExchangeCode(ctx context.Context, code, redirectURI string) (*linkedin.Token, error) {
	a.exchanges = append(a.exchanges, redirectURI)
	return a.exchangeTok, a.exchangeErr
}

func (a *fakeAuth) Refresh(ctx context.Context, refreshToken string) (*linkedin.Token, error) {
	a.refreshCalls++
	return a.refreshTok, a.refreshErr
}

type fakePrompter struct {
	code  string
	err   error
	calls int
}

func (p *fakePrompter) Authorize(ctx context.Context, req *linkedin.AuthorizationRequest) (string, error) {
	p.calls++
	return p.code, p.err
}

type fakePublisher struct {
	tokens []string // access token used for each publish
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, u *content.Unit, creds *credentials.Credentials) (*linkedin.Result, error) {
	p.tokens = append(p.tokens, creds.AccessToken)
	if p.err != nil {
		return &linkedin.Result{FailureReason: p.err.Error()}, p.err
	}
	return &linkedin.Result{Success: true, PostID: "urn:li:share:1", Variant: "posts-organization"}, nil
}

type fakeLedger struct {
	posted map[int]string
}

func (l *fakeLedger) HasPosted(ctx context.Context, id int) (bool, error) {
	_, ok := l.posted[id]
	return ok, nil
}

func (l *fakeLedger) Record(ctx context.Context, id int, postID string) error {
	if l.posted == nil {
		l.posted = make(map[int]string)
	}
	l.posted[id] = postID
	return nil
}

type fakeIdentity struct {
	member   *linkedin.Member
	subject  string
	lookups  int
	verified []string
}

func (f *fakeIdentity) Member(ctx context.Context, accessToken string) (*linkedin.Member, error) {
	f.lookups++
	return f.member, nil
}

func (f *fakeIdentity) VerifyIDToken(ctx context.Context, raw string) (string, error) {
	f.verified = append(f.verified, raw)
	return f.subject, nil
}

type fixture struct {
	store     *fakeStore
	auth      *fakeAuth
	prompter  *fakePrompter
	publisher *fakePublisher
	ledger    *fakeLedger
	states    []State
	o         *Orchestrator
}

func newFixture(creds credentials.Credentials) *fixture {
	f := &fixture{
		store:     &fakeStore{creds: creds},
		auth:      &fakeAuth{},
		prompter:  &fakePrompter{code: "code-1"},
		publisher: &fakePublisher{},
		ledger:    &fakeLedger{},
	}
	f.o = &Orchestrator{
		Store:         f.store,
		NewAuthorizer: func(*credentials.Credentials) Authorizer { return f.auth },
		Publisher:     f.publisher,
		Ledger:        f.ledger,
		Prompter:      f.prompter,
		Now:           func() time.Time { return now },
		OnTransition:  func(from, to State) { f.states = append(f.states, to) },
	}
	return f
}

var baseCreds = credentials.Credentials{
	ClientID:       "client",
	ClientSecret:   "secret",
	RedirectURI:    "http://localhost:3000/callback",
	OrganizationID: "999",
	PersonID:       "abc123",
}

func withToken(access, refresh string, expiresAt time.Time) credentials.Credentials {
	c := baseCreds
	c.SetToken(access, refresh, expiresAt)
	return c
}

var unit = &content.Unit{ID: 2, Title: "t", Body: "hello"}

func TestPostWithValidToken(t *testing.T) {
	f := newFixture(withToken("good", "refresh", now.Add(time.Hour)))

	res, err := f.o.Post(context.Background(), unit, false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []State{CredentialsLoaded, TokenValid, Published}, f.states)
	assert.Equal(t, []string{"good"}, f.publisher.tokens)
	assert.Equal(t, map[int]string{2: "urn:li:share:1"}, f.ledger.posted)
	assert.Empty(t, f.store.saves)
	assert.Equal(t, 0, f.auth.refreshCalls)
}

func TestExpiredTokenIsRefreshedOnce(t *testing.T) {
	f := newFixture(withToken("stale", "refresh-1", now.Add(-time.Minute)))
	f.auth.refreshTok = &linkedin.Token{AccessToken: "fresh", RefreshToken: "refresh-1", ExpiresAt: now.Add(time.Hour)}

	_, err := f.o.Post(context.Background(), unit, false)
	require.NoError(t, err)

	assert.Equal(t, 1, f.auth.refreshCalls)
	assert.Equal(t, []string{"fresh"}, f.publisher.tokens)
	assert.Equal(t, []State{CredentialsLoaded, TokenRefreshNeeded, TokenValid, Published}, f.states)

	require.Len(t, f.store.saves, 1)
	assert.Equal(t, "fresh", f.store.saves[0].AccessToken)
	assert.Equal(t, now.Add(time.Hour), f.store.saves[0].ExpiresAt)
	assert.Equal(t, "999", f.store.saves[0].OrganizationID, "unrelated fields survive")
}

func TestStaleTokenIsNeverPublished(t *testing.T) {
	f := newFixture(withToken("stale", "refresh-1", now.Add(-time.Minute)))
	f.auth.refreshErr = &linkedin.ProviderError{Kind: linkedin.ErrRefreshFailed, Code: "invalid_grant"}
	f.o.Prompter = nil

	_, err := f.o.Post(context.Background(), unit, false)
	assert.True(t, errors.Is(err, ErrAuthorizationRequired))
	assert.Equal(t, []State{CredentialsLoaded, TokenRefreshNeeded, AuthorizationNeeded, Failed}, f.states)
	assert.Empty(t, f.publisher.tokens)
	assert.Empty(t, f.ledger.posted)
}

func TestRefreshFailureFallsBackToAuthorization(t *testing.T) {
	f := newFixture(withToken("stale", "refresh-1", now.Add(-time.Minute)))
	f.auth.refreshErr = &linkedin.ProviderError{Kind: linkedin.ErrRefreshFailed, Code: "invalid_grant"}
	f.auth.exchangeTok = &linkedin.Token{AccessToken: "authorized", ExpiresAt: now.Add(time.Hour)}

	_, err := f.o.Post(context.Background(), unit, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.auth.refreshCalls)
	assert.Equal(t, 1, f.prompter.calls)
	assert.Equal(t, []string{"authorized"}, f.publisher.tokens)
	assert.Equal(t, []State{CredentialsLoaded, TokenRefreshNeeded, AuthorizationNeeded, TokenValid, Published}, f.states)
}

func TestTransientRefreshFailureIsTerminal(t *testing.T) {
	f := newFixture(withToken("stale", "refresh-1", now.Add(-time.Minute)))
	f.auth.refreshErr = &linkedin.APIError{Kind: linkedin.ErrTransient, Err: errors.New("connection refused")}

	_, err := f.o.Post(context.Background(), unit, false)
	assert.True(t, errors.Is(err, linkedin.ErrTransient))
	assert.Equal(t, 0, f.prompter.calls)
	assert.Equal(t, Failed, f.o.State())
	assert.Empty(t, f.publisher.tokens)
}

func TestExpiredWithoutRefreshTokenNeedsAuthorization(t *testing.T) {
	f := newFixture(withToken("stale", "", now.Add(-time.Minute)))
	f.auth.exchangeTok = &linkedin.Token{AccessToken: "authorized", ExpiresAt: now.Add(time.Hour)}

	require.NoError(t, f.o.EnsureToken(context.Background()))
	assert.Equal(t, 0, f.auth.refreshCalls)
	assert.Equal(t, []State{CredentialsLoaded, AuthorizationNeeded, TokenValid}, f.states)
}

func TestAuthorizeExchangesWithSameRedirectURI(t *testing.T) {
	f := newFixture(baseCreds)
	f.o.RedirectURI = "http://127.0.0.1:8765/cb"
	f.auth.exchangeTok = &linkedin.Token{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}

	require.NoError(t, f.o.Authorize(context.Background()))
	assert.Equal(t, []string{"http://127.0.0.1:8765/cb"}, f.auth.built)
	assert.Equal(t, f.auth.built, f.auth.exchanges)
}

func TestAuthorizeWithoutRedirectURI(t *testing.T) {
	c := baseCreds
	c.RedirectURI = ""
	f := newFixture(c)

	err := f.o.Authorize(context.Background())
	assert.True(t, errors.Is(err, ErrNoRedirectURI))
	assert.Equal(t, 0, f.prompter.calls)
}

func TestFailedExchangeLeavesCredentialsUnchanged(t *testing.T) {
	before := withToken("old", "old-refresh", now.Add(-time.Hour))
	f := newFixture(before)
	f.auth.refreshErr = &linkedin.ProviderError{Kind: linkedin.ErrRefreshFailed}
	f.auth.exchangeErr = &linkedin.ProviderError{Kind: linkedin.ErrTokenExchangeFailed, Code: "invalid_grant", Status: 400}

	err := f.o.EnsureToken(context.Background())
	assert.True(t, errors.Is(err, linkedin.ErrTokenExchangeFailed))
	assert.Equal(t, Failed, f.o.State())
	assert.Empty(t, f.store.saves)
	assert.Equal(t, &before, f.o.Credentials())
	assert.Equal(t, before, f.store.creds)
}

func TestExchangeCodeCommand(t *testing.T) {
	f := newFixture(baseCreds)
	f.auth.exchangeErr = &linkedin.ProviderError{Kind: linkedin.ErrTokenExchangeFailed, Code: "invalid_grant"}

	err := f.o.ExchangeCode(context.Background(), "code", "http://localhost:3000/other")
	assert.True(t, errors.Is(err, linkedin.ErrTokenExchangeFailed))
	assert.Equal(t, []string{"http://localhost:3000/other"}, f.auth.exchanges)
	assert.Empty(t, f.store.saves)

	f = newFixture(baseCreds)
	f.auth.exchangeTok = &linkedin.Token{AccessToken: "new", RefreshToken: "r", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, f.o.ExchangeCode(context.Background(), "code", "http://localhost:3000/callback"))
	require.Len(t, f.store.saves, 1)
	assert.Equal(t, "new", f.store.saves[0].AccessToken)
	assert.Equal(t, "r", f.store.saves[0].RefreshToken)
}

func TestAlreadyPosted(t *testing.T) {
	f := newFixture(withToken("good", "", now.Add(time.Hour)))
	f.ledger.posted = map[int]string{2: "urn:li:share:old"}

	_, err := f.o.Post(context.Background(), unit, false)
	assert.True(t, errors.Is(err, ErrAlreadyPosted))
	assert.Empty(t, f.publisher.tokens)

	f = newFixture(withToken("good", "", now.Add(time.Hour)))
	f.ledger.posted = map[int]string{2: "urn:li:share:old"}
	_, err = f.o.Post(context.Background(), unit, true)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", f.ledger.posted[2])
}

func TestConfigUnavailable(t *testing.T) {
	f := newFixture(baseCreds)
	f.store.loadErr = credentials.ErrConfigUnavailable

	_, err := f.o.Post(context.Background(), unit, false)
	assert.True(t, errors.Is(err, credentials.ErrConfigUnavailable))
	assert.Equal(t, []State{Failed}, f.states)
}

func TestPublishFailureIsNotRecorded(t *testing.T) {
	f := newFixture(withToken("good", "", now.Add(time.Hour)))
	f.publisher.err = &linkedin.APIError{Kind: linkedin.ErrUnauthorized, Status: 403}

	res, err := f.o.Post(context.Background(), unit, false)
	assert.True(t, errors.Is(err, linkedin.ErrUnauthorized))
	assert.False(t, res.Success)
	assert.Empty(t, f.ledger.posted)
	assert.Equal(t, Failed, f.o.State())
}

func TestPersonIDIsResolvedBeforePublishing(t *testing.T) {
	c := withToken("good", "", now.Add(time.Hour))
	c.PersonID = ""
	f := newFixture(c)
	id := &fakeIdentity{member: &linkedin.Member{ID: "p-77"}}
	f.o.NewIdentity = func(context.Context, *credentials.Credentials) (Identity, error) { return id, nil }

	_, err := f.o.Post(context.Background(), unit, false)
	require.NoError(t, err)
	assert.Equal(t, 1, id.lookups)
	require.Len(t, f.store.saves, 1)
	assert.Equal(t, "p-77", f.store.saves[0].PersonID)
	assert.Equal(t, "p-77", f.o.Credentials().PersonID)
}

func TestIDTokenSetsPersonID(t *testing.T) {
	c := baseCreds
	c.PersonID = ""
	f := newFixture(c)
	id := &fakeIdentity{subject: "sub-9"}
	f.o.NewIdentity = func(context.Context, *credentials.Credentials) (Identity, error) { return id, nil }
	f.auth.exchangeTok = &linkedin.Token{AccessToken: "a", IDToken: "raw.id.token", ExpiresAt: now.Add(time.Hour)}

	require.NoError(t, f.o.Authorize(context.Background()))
	assert.Equal(t, []string{"raw.id.token"}, id.verified)
	require.Len(t, f.store.saves, 1)
	assert.Equal(t, "sub-9", f.store.saves[0].PersonID)
}

func TestMemberDoesNotPrompt(t *testing.T) {
	f := newFixture(baseCreds)

	_, err := f.o.Member(context.Background())
	assert.True(t, errors.Is(err, ErrAuthorizationRequired))
	assert.Equal(t, 0, f.prompter.calls)
}

// The organization endpoint refuses the token, so the second post of a
// three-post document ends up on the member's profile.
func TestPostFallsBackToPersonalProfile(t *testing.T) {
	doc, err := content.Parse(`## Post 1: One
### Post Content
first
---
## Post 2: Two
### Post Content
second #two
---
## Post 3: Three
### Post Content
third
---
`)
	require.NoError(t, err)
	u, err := doc.Unit(2)
	require.NoError(t, err)

	var authors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Author     string `json:"author"`
			Commentary string `json:"commentary"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		authors = append(authors, body.Author)
		assert.Equal(t, `second {hashtag|\#|two}`, body.Commentary)

		if body.Author == "urn:li:organization:999" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"status":403,"serviceErrorCode":100,"message":"Not enough permissions to access: partnerApiPostsExternal.CREATE.20240501"}`))
			return
		}
		w.Header().Set("x-restli-id", "urn:li:share:7000")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := linkedin.New(srv.Client())
	client.BaseURL = srv.URL

	f := newFixture(withToken("good", "", now.Add(time.Hour)))
	f.o.Publisher = client

	res, err := f.o.Post(context.Background(), u, false)
	require.NoError(t, err)
	assert.Equal(t, &linkedin.Result{Success: true, PostID: "urn:li:share:7000", Variant: "posts-person"}, res)
	assert.Equal(t, []string{"urn:li:organization:999", "urn:li:person:abc123"}, authors)
	assert.Equal(t, map[int]string{2: "urn:li:share:7000"}, f.ledger.posted)
}
