package main

import (
	"errors"
	"fmt"

	"github.com/alexflint/linkedin-publisher/content"
	"github.com/alexflint/linkedin-publisher/credentials"
	"github.com/alexflint/linkedin-publisher/linkedin"
	"github.com/alexflint/linkedin-publisher/oauthcallback"
	"github.com/alexflint/linkedin-publisher/orchestrator"
)

// nextStep suggests what the operator should do about err
func nextStep(err error) string {
	var apiErr *linkedin.APIError
	switch {
	case errors.Is(err, credentials.ErrConfigUnavailable):
		return fmt.Sprintf("Check that the env file exists and sets %s and %s, or point --env-file at it.",
			credentials.KeyClientID, credentials.KeyClientSecret)
	case errors.Is(err, credentials.ErrWrongPassphrase):
		return "Check the passphrase and try again."
	case errors.Is(err, orchestrator.ErrNoRedirectURI):
		return fmt.Sprintf("Set %s to the redirect URL registered for the LinkedIn app, or pass --redirect-uri.",
			credentials.KeyRedirectURI)
	case errors.Is(err, orchestrator.ErrAuthorizationRequired):
		return "Run the auth command from an interactive terminal to get a new access token."
	case errors.Is(err, orchestrator.ErrAlreadyPosted):
		return "Pass --force to publish it again."
	case errors.Is(err, linkedin.ErrTokenExchangeFailed):
		return "Codes are single use and expire after a few minutes, and the redirect uri must match the registered one exactly. Run the auth command again."
	case errors.Is(err, linkedin.ErrRefreshFailed):
		return "The refresh token is no longer accepted. Run the auth command to authorize again."
	case errors.Is(err, linkedin.ErrNoVariant):
		return fmt.Sprintf("Set %s or %s in the env file.", credentials.KeyOrganizationID, credentials.KeyPersonID)
	case errors.Is(err, linkedin.ErrUnauthorized):
		return "The token lacks the permission for this post. Run the auth command with the w_organization_social or w_member_social scope and check the app's products."
	case errors.Is(err, linkedin.ErrRateLimited):
		if errors.As(err, &apiErr) && apiErr.RetryAfter != "" {
			return fmt.Sprintf("LinkedIn is limiting requests. Retry after %s seconds.", apiErr.RetryAfter)
		}
		return "LinkedIn is limiting requests. Wait a while before trying again."
	case errors.Is(err, linkedin.ErrBadRequest):
		return "LinkedIn rejected the request, see the response above. Check the organization id and --api-version."
	case errors.Is(err, linkedin.ErrTransient):
		return "Could not reach LinkedIn. Try again later."
	case errors.Is(err, content.ErrMalformedDocument):
		return "Run the list command to see which posts the document contains."
	case errors.Is(err, oauthcallback.ErrAuthorizationDenied):
		return "Authorization was declined. Run the auth command again and approve the request."
	case errors.Is(err, oauthcallback.ErrStateMismatch):
		return "The pasted address belongs to another authorization attempt. Paste the one from this attempt."
	}
	return ""
}
