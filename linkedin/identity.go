package linkedin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"
)

// Issuer is LinkedIn's OpenID Connect issuer
const Issuer = "https://www.linkedin.com/oauth"

// Member describes the authenticated LinkedIn member
type Member struct {
	ID    string // the subject, used in urn:li:person:<ID>
	Name  string
	Email string
}

// URN is the author identifier for posts made as this member
func (m *Member) URN() string {
	return PersonURN(m.ID)
}

// Identity resolves the member behind an access token using LinkedIn's
// OpenID Connect provider
type Identity struct {
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// NewIdentity discovers the OpenID configuration published by issuer
func NewIdentity(ctx context.Context, issuer, clientID string, httpClient *http.Client) (*Identity, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("error discovering openid configuration for %s: %w", issuer, err)
	}

	return &Identity{
		provider:   provider,
		verifier:   provider.Verifier(&oidc.Config{ClientID: clientID}),
		httpClient: httpClient,
	}, nil
}

func (id *Identity) context(ctx context.Context) context.Context {
	if id.httpClient != nil {
		return oidc.ClientContext(ctx, id.httpClient)
	}
	return ctx
}

// Member fetches the member that owns accessToken from the userinfo endpoint
func (id *Identity) Member(ctx context.Context, accessToken string) (*Member, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	info, err := id.provider.UserInfo(id.context(ctx), src)
	if err != nil {
		return nil, fmt.Errorf("error fetching userinfo: %w", err)
	}

	var claims struct {
		Name string `json:"name"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("error decoding userinfo claims: %w", err)
	}

	return &Member{
		ID:    info.Subject,
		Name:  claims.Name,
		Email: info.Email,
	}, nil
}

// VerifyIDToken checks the signature, issuer and audience of an ID token
// returned by a code exchange, and returns its subject
func (id *Identity) VerifyIDToken(ctx context.Context, raw string) (string, error) {
	tok, err := id.verifier.Verify(id.context(ctx), raw)
	if err != nil {
		return "", fmt.Errorf("error verifying id token: %w", err)
	}
	return tok.Subject, nil
}
