// Package oauthcallback waits for the authorization code at the end of an
// OAuth consent step, either from the browser redirect or pasted by the
// operator.
package oauthcallback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrStateMismatch is returned when a pasted redirect URL carries the wrong state
	ErrStateMismatch = errors.New("oauth state does not match")

	// ErrAuthorizationDenied is returned when the provider redirects back with an error
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrNotLocal is returned by Listen for redirect URIs that are not served on this machine
	ErrNotLocal = errors.New("redirect uri is not on localhost")
)

// Receiver collects one authorization code
type Receiver struct {
	redirect *url.URL
	listener net.Listener // nil when only manual entry is possible
}

func isLocalHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Listen opens a listener on the host and port of a localhost redirect URI.
// A port of 0 picks a free port; use RedirectURL to find out which.
func Listen(redirectURI string) (*Receiver, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("error parsing redirect uri: %w", err)
	}
	if u.Scheme != "http" || !isLocalHost(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrNotLocal, redirectURI)
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return nil, fmt.Errorf("error opening a TCP port to receive the oauth callback: %w", err)
	}

	if port == "0" {
		u.Host = net.JoinHostPort(u.Hostname(), fmt.Sprint(listener.Addr().(*net.TCPAddr).Port))
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return &Receiver{redirect: u, listener: listener}, nil
}

// Manual creates a receiver that only accepts pasted codes
func Manual(redirectURI string) *Receiver {
	u, _ := url.Parse(redirectURI)
	return &Receiver{redirect: u}
}

// RedirectURL is the redirect URI the receiver answers on
func (r *Receiver) RedirectURL() string {
	if r.redirect == nil {
		return ""
	}
	return r.redirect.String()
}

// Listening reports whether the receiver accepts browser redirects
func (r *Receiver) Listening() bool {
	return r.listener != nil
}

// Close releases the listener
func (r *Receiver) Close() error {
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

type result struct {
	code string
	err  error
}

// Wait blocks until a code with the expected state arrives on the redirect
// URI, or until a line is read from manual. A manual line may be the bare
// code or the URL the browser was redirected to. There is no timeout other
// than ctx.
func (r *Receiver) Wait(ctx context.Context, state string, manual io.Reader) (string, error) {
	if r.listener == nil && manual == nil {
		return "", errors.New("no way to receive the authorization code: redirect uri is not local and no manual input")
	}

	results := make(chan result, 1)
	deliver := func(res result) {
		select {
		case results <- res:
		default:
		}
	}

	if r.listener != nil {
		server := http.Server{Handler: r.handler(ctx, state, deliver)}
		go server.Serve(r.listener)
		defer server.Shutdown(context.Background())
	}

	if manual != nil {
		go readManual(manual, state, deliver)
	}

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Receiver) handler(ctx context.Context, state string, deliver func(result)) http.Handler {
	log := zerolog.Ctx(ctx)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != r.redirect.Path {
			log.Debug().Str("path", req.URL.Path).Msg("oauth callback server ignoring request")
			http.NotFound(w, req)
			return
		}

		code, err := fromQuery(req.URL.Query(), state)
		switch {
		case errors.Is(err, ErrStateMismatch):
			// not our redirect; keep waiting for the real one
			log.Warn().Msg("oauth callback received a request with the wrong state, ignoring")
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case err != nil:
			fmt.Fprintf(w, "Authorization failed: %v. You may close this page and return to the terminal.", err)
		default:
			fmt.Fprint(w, "linkedin-publisher is authorized. You may now close this page and return to the terminal.")
		}
		deliver(result{code: code, err: err})
	})
}

// fromQuery extracts the code from redirect query parameters
func fromQuery(q url.Values, state string) (string, error) {
	if q.Get("state") != state {
		return "", ErrStateMismatch
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrAuthorizationDenied, e, q.Get("error_description"))
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("there was no auth code in the callback from oauth flow")
	}
	return code, nil
}

// ParseInput interprets one line typed by the operator
func ParseInput(line, state string) (string, error) {
	line = strings.TrimSpace(line)
	if strings.Contains(line, "://") || strings.HasPrefix(line, "?") {
		u, err := url.Parse(line)
		if err != nil {
			return "", fmt.Errorf("error parsing pasted url: %w", err)
		}
		return fromQuery(u.Query(), state)
	}
	return line, nil
}

func readManual(rd io.Reader, state string, deliver func(result)) {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		code, err := ParseInput(scanner.Text(), state)
		deliver(result{code: code, err: err})
		return
	}
	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	deliver(result{err: fmt.Errorf("error reading authorization code: %w", err)})
}
