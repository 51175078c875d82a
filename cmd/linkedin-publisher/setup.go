package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alexflint/linkedin-publisher/content"
	"github.com/alexflint/linkedin-publisher/credentials"
	"github.com/alexflint/linkedin-publisher/linkedin"
	"github.com/alexflint/linkedin-publisher/orchestrator"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const googleTokenFile = ".cache/google-token.json"

// newOrchestrator wires the real components together. The ledger is left
// unset because only the post verb needs it.
func newOrchestrator(ctx context.Context, args *args) *orchestrator.Orchestrator {
	client := linkedin.New(nil)
	client.Version = args.APIVersion

	o := &orchestrator.Orchestrator{
		Store: credentials.NewStore(args.EnvFile),
		NewAuthorizer: func(c *credentials.Credentials) orchestrator.Authorizer {
			return linkedin.NewAuthorizer(c.ClientID, c.ClientSecret)
		},
		NewIdentity: func(ctx context.Context, c *credentials.Credentials) (orchestrator.Identity, error) {
			id, err := linkedin.NewIdentity(ctx, linkedin.Issuer, c.ClientID, nil)
			if err != nil {
				return nil, err
			}
			return id, nil
		},
		Publisher:   client,
		Scopes:      args.Scopes,
		RedirectURI: args.RedirectURI,
		OnTransition: func(from, to orchestrator.State) {
			if to == orchestrator.AuthorizationNeeded {
				zerolog.Ctx(ctx).Info().Str("from", from.String()).Msg("authorization is needed")
			}
		},
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		o.Prompter = &terminalPrompter{in: os.Stdin, out: os.Stdout}
	}
	return o
}

// loadDocument reads the posts from the google doc if one was given and from
// the content file otherwise
func loadDocument(ctx context.Context, args *args) (*content.Document, error) {
	if args.GoogleDoc == "" {
		return content.Load(args.Content)
	}

	ts, err := GoogleAuth(ctx, args.GoogleClientSecrets, googleTokenFile, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("error authenticating with google: %w", err)
	}

	driveClient, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("error creating drive client: %w", err)
	}

	return content.LoadGoogleDoc(ctx, driveClient, args.GoogleDoc)
}
