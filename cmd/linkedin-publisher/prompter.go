package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/alexflint/linkedin-publisher/linkedin"
	"github.com/alexflint/linkedin-publisher/oauthcallback"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

// terminalPrompter opens the browser on the authorization page and waits for
// the redirect, or for the operator to paste the code
type terminalPrompter struct {
	in  io.Reader
	out io.Writer
}

func (p *terminalPrompter) Authorize(ctx context.Context, req *linkedin.AuthorizationRequest) (string, error) {
	log := zerolog.Ctx(ctx)

	rcv, err := oauthcallback.Listen(req.RedirectURI)
	if errors.Is(err, oauthcallback.ErrNotLocal) {
		log.Info().Str("redirect_uri", req.RedirectURI).Msg("redirect uri is not on this machine, the code must be pasted")
		rcv = oauthcallback.Manual(req.RedirectURI)
	} else if err != nil {
		return "", err
	}
	defer rcv.Close()

	fmt.Fprintf(p.out, "Go to the following link in your browser:\n\n  %s\n\n", req.URL)
	if err := browser.OpenURL(req.URL); err != nil {
		log.Debug().Err(err).Msg("could not open a browser")
	}

	if rcv.Listening() {
		fmt.Fprintf(p.out, "Waiting for the redirect to %s.\n", rcv.RedirectURL())
		fmt.Fprintln(p.out, "If it does not arrive, paste the code or the address you were redirected to and press enter.")
	} else {
		fmt.Fprintln(p.out, "After approving, paste the code or the address you were redirected to and press enter.")
	}

	return rcv.Wait(ctx, req.State, p.in)
}
