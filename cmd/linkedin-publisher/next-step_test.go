package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alexflint/linkedin-publisher/credentials"
	"github.com/alexflint/linkedin-publisher/linkedin"
	"github.com/alexflint/linkedin-publisher/orchestrator"
	"github.com/stretchr/testify/assert"
)

func TestNextStep(t *testing.T) {
	assert.Contains(t, nextStep(fmt.Errorf("error reading .env: %w", credentials.ErrConfigUnavailable)), "LINKEDIN_CLIENT_ID")
	assert.Contains(t, nextStep(&linkedin.ProviderError{Kind: linkedin.ErrTokenExchangeFailed, Code: "invalid_grant"}), "auth command")
	assert.Contains(t, nextStep(&linkedin.APIError{Kind: linkedin.ErrRateLimited, RetryAfter: "120"}), "120 seconds")
	assert.Contains(t, nextStep(&linkedin.APIError{Kind: linkedin.ErrRateLimited}), "Wait")
	assert.Contains(t, nextStep(fmt.Errorf("%w: post 2", orchestrator.ErrAlreadyPosted)), "--force")
	assert.Equal(t, "", nextStep(errors.New("something else")))
}

func TestDescribeExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var c credentials.Credentials
	assert.Equal(t, "no recorded expiry", describeExpiry(&c, now))

	c.ExpiresAt = now.Add(2 * time.Hour)
	assert.Equal(t, "expires at 2026-03-01T12:00:00Z (in 2h0m0s)", describeExpiry(&c, now))

	c.ExpiresAt = now.Add(-time.Hour)
	assert.Equal(t, "expired at 2026-03-01T09:00:00Z", describeExpiry(&c, now))
}
