package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/alexflint/linkedin-publisher/content"
	"github.com/alexflint/linkedin-publisher/credentials"
	"github.com/kr/pretty"
	"github.com/rs/zerolog"
)

const (
	// APIBaseURL is the root of LinkedIn's REST API
	APIBaseURL = "https://api.linkedin.com"

	// DefaultVersion is sent as the LinkedIn-Version header
	DefaultVersion = "202405"
)

// OrganizationURN builds the author id for an organization page
func OrganizationURN(id string) string {
	if strings.HasPrefix(id, "urn:li:") {
		return id
	}
	return "urn:li:organization:" + id
}

// PersonURN builds the author id for a member
func PersonURN(id string) string {
	if strings.HasPrefix(id, "urn:li:") {
		return id
	}
	return "urn:li:person:" + id
}

// Variant is one way of creating a post. Variants are tried in order and
// the next one is only tried when the previous one was unauthorized.
type Variant struct {
	Name string
	Path string

	// Author returns the author URN for this variant, or false if the
	// variant does not apply to the unit or credentials
	Author func(u *content.Unit, creds *credentials.Credentials) (string, bool)

	// Body builds the JSON request body
	Body func(author string, u *content.Unit) interface{}
}

// DefaultVariants posts through the unified posts endpoint, first as the
// configured organization and then as the authenticated member
var DefaultVariants = []Variant{
	{Name: "posts-organization", Path: "/rest/posts", Author: organizationAuthor, Body: postsBody},
	{Name: "posts-person", Path: "/rest/posts", Author: personAuthor, Body: postsBody},
}

func organizationAuthor(u *content.Unit, creds *credentials.Credentials) (string, bool) {
	if u.Audience != content.Organization || creds.OrganizationID == "" {
		return "", false
	}
	return OrganizationURN(creds.OrganizationID), true
}

func personAuthor(u *content.Unit, creds *credentials.Credentials) (string, bool) {
	if creds.PersonID == "" {
		return "", false
	}
	return PersonURN(creds.PersonID), true
}

type distribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type postRequest struct {
	Author                    string       `json:"author"`
	Commentary                string       `json:"commentary"`
	Visibility                string       `json:"visibility"`
	Distribution              distribution `json:"distribution"`
	LifecycleState            string       `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool         `json:"isReshareDisabledByAuthor"`
}

func postsBody(author string, u *content.Unit) interface{} {
	return postRequest{
		Author:     author,
		Commentary: content.Commentary(u.Body),
		Visibility: "PUBLIC",
		Distribution: distribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}
}

// Result describes the outcome of Publish
type Result struct {
	Success       bool
	PostID        string // the URN of the created post
	FailureReason string
	Variant       string // the last variant attempted
}

// Client publishes posts through LinkedIn's REST API
type Client struct {
	BaseURL  string
	Version  string
	Variants []Variant
	http     *http.Client
}

// New creates a client that uses the default variants
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:  APIBaseURL,
		Version:  DefaultVersion,
		Variants: DefaultVariants,
		http:     httpClient,
	}
}

// Publish creates a post for the unit. On failure the returned result is
// still populated and the error is an *APIError whose Kind says whether the
// caller should re-authorize, fix the request or back off. Nothing is
// retried here.
func (c *Client) Publish(ctx context.Context, u *content.Unit, creds *credentials.Credentials) (*Result, error) {
	log := zerolog.Ctx(ctx)

	var attempted string
	var lastErr error
	for _, v := range c.Variants {
		author, ok := v.Author(u, creds)
		if !ok {
			log.Debug().Str("variant", v.Name).Msg("variant does not apply, skipping")
			continue
		}

		attempted = v.Name
		postID, err := c.create(ctx, v, author, u, creds.AccessToken)
		if err == nil {
			log.Info().Str("variant", v.Name).Str("post", postID).Msg("created post")
			return &Result{Success: true, PostID: postID, Variant: v.Name}, nil
		}

		lastErr = err
		if !errors.Is(err, ErrUnauthorized) {
			break
		}
		log.Warn().Err(err).Str("variant", v.Name).Msg("not authorized for this variant, trying the next one")
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w to post %d: configure an organization id or a person id", ErrNoVariant, u.ID)
	}
	return &Result{FailureReason: lastErr.Error(), Variant: attempted}, lastErr
}

// create performs one POST and returns the id of the created post
func (c *Client) create(ctx context.Context, v Variant, author string, u *content.Unit, accessToken string) (string, error) {
	log := zerolog.Ctx(ctx)

	payload := v.Body(author, u)
	log.Debug().Str("variant", v.Name).Msg(pretty.Sprint(payload))

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshalling %s request: %w", v.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+v.Path, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	if c.Version != "" {
		req.Header.Set("LinkedIn-Version", c.Version)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &APIError{Kind: ErrTransient, Variant: v.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Kind: ErrTransient, Variant: v.Name, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Kind:       classify(resp.StatusCode),
			Variant:    v.Name,
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
		if apiErr.Kind == ErrBadRequest {
			log.Error().Str("variant", v.Name).Int("status", resp.StatusCode).Str("body", apiErr.Body).Msg("linkedin rejected the request")
		}
		return "", apiErr
	}

	if id := resp.Header.Get("X-Restli-Id"); id != "" {
		return id, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	if len(body) > 0 && json.Unmarshal(body, &created) == nil && created.ID != "" {
		return created.ID, nil
	}

	return "", fmt.Errorf("linkedin returned HTTP %d for %s without a post id", resp.StatusCode, v.Name)
}
