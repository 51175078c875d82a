package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/alexflint/linkedin-publisher/linkedin"
	"github.com/alexflint/linkedin-publisher/oauthcallback"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Read a token from a local file.
func readToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tok oauth2.Token
	err = json.NewDecoder(f).Decode(&tok)
	if err != nil {
		return nil, err
	}

	return &tok, nil
}

// Saves a token to a file path.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

type googleTokenSource struct {
	ctx     context.Context
	config  *oauth2.Config
	tokFile string
}

func (ts googleTokenSource) Token() (*oauth2.Token, error) {
	log := zerolog.Ctx(ts.ctx)

	// pick an unused port to receive the callback on
	rcv, err := oauthcallback.Listen("http://localhost:0/")
	if err != nil {
		return nil, err
	}
	defer rcv.Close()

	state, err := linkedin.NewState()
	if err != nil {
		return nil, err
	}

	// open the user's browser to the oauth screen
	ts.config.RedirectURL = rcv.RedirectURL()
	authURL := ts.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if err := browser.OpenURL(authURL); err != nil {
		fmt.Println("Go to the following link in your browser:\n" + authURL)
	}

	code, err := rcv.Wait(ts.ctx, state, nil)
	if err != nil {
		return nil, fmt.Errorf("error waiting for the google oauth callback: %w", err)
	}

	// use the auth code to get a token
	tok, err := ts.config.Exchange(ts.ctx, code)
	if err != nil {
		return nil, fmt.Errorf("error retrieving token from web: %w", err)
	}

	// save the token to a file so that next time we might not have to go through the flow
	if ts.tokFile != "" {
		log.Info().Str("path", ts.tokFile).Msg("storing google token")
		err = saveToken(ts.tokFile, tok)
		if err != nil {
			return nil, fmt.Errorf("error saving token to file: %w", err)
		}
	}

	return tok, nil
}

// GoogleAuth authenticates with Google using oauth
func GoogleAuth(ctx context.Context, secretsFile, tokFile string, scopes ...string) (oauth2.TokenSource, error) {
	buf, err := ioutil.ReadFile(secretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read google client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(buf, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	// create a token source that performs the oauth flow
	var ts oauth2.TokenSource = googleTokenSource{
		ctx:     ctx,
		config:  config,
		tokFile: tokFile,
	}

	// try load the token from a file
	tok, err := readToken(tokFile)
	if err == nil {
		zerolog.Ctx(ctx).Debug().Str("path", tokFile).Msg("reusing google token")
		ts = oauth2.ReuseTokenSource(tok, ts)
	}

	return ts, nil
}
