package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alexflint/linkedin-publisher/credentials"
)

func describeExpiry(c *credentials.Credentials, now time.Time) string {
	if c.ExpiresAt.IsZero() {
		return "no recorded expiry"
	}
	left := c.ExpiresAt.Sub(now).Round(time.Minute)
	if left <= 0 {
		return fmt.Sprintf("expired at %s", c.ExpiresAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("expires at %s (in %s)", c.ExpiresAt.Format(time.RFC3339), left)
}

func runTest(ctx context.Context, args *args) error {
	o := newOrchestrator(ctx, args)

	m, err := o.Member(ctx)
	if err != nil {
		return err
	}

	creds := o.Credentials()
	fmt.Printf("access token works for %s (%s)\n", m.Name, m.URN())
	fmt.Printf("token %s\n", describeExpiry(creds, time.Now()))
	if creds.OrganizationID == "" {
		fmt.Printf("%s is not set, posts will go to the personal profile\n", credentials.KeyOrganizationID)
	}
	return nil
}

func runAuth(ctx context.Context, args *args) error {
	o := newOrchestrator(ctx, args)
	if err := o.Authorize(ctx); err != nil {
		return err
	}
	fmt.Printf("stored new access token in %s, %s\n", args.EnvFile, describeExpiry(o.Credentials(), time.Now()))
	return nil
}

func runToken(ctx context.Context, args *args, cmd *tokenArgs) error {
	o := newOrchestrator(ctx, args)
	if err := o.ExchangeCode(ctx, cmd.Code, cmd.RedirectURI); err != nil {
		return err
	}
	fmt.Printf("stored new access token in %s, %s\n", args.EnvFile, describeExpiry(o.Credentials(), time.Now()))
	return nil
}
