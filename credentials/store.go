package credentials

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfigUnavailable is returned when the env file cannot be read or written
var ErrConfigUnavailable = errors.New("configuration unavailable")

// Keys read from the env file
const (
	KeyClientID       = "LINKEDIN_CLIENT_ID"
	KeyClientSecret   = "LINKEDIN_CLIENT_SECRET"
	KeyRedirectURI    = "LINKEDIN_REDIRECT_URI"
	KeyOrganizationID = "LINKEDIN_ORGANIZATION_ID"
	KeyPersonID       = "LINKEDIN_PERSON_ID"
	KeyAccessToken    = "LINKEDIN_ACCESS_TOKEN"
	KeyRefreshToken   = "LINKEDIN_REFRESH_TOKEN"
	KeyExpiresAt      = "LINKEDIN_TOKEN_EXPIRES_AT"
)

// Store reads and writes credentials in a KEY=value env file. Save only
// touches the lines for the keys the store owns; every other line is
// written back byte for byte.
type Store struct {
	Path string
}

// NewStore creates a store backed by the env file at path
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads credentials from the env file
func (s *Store) Load() (*Credentials, error) {
	buf, err := ioutil.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading %s: %v", ErrConfigUnavailable, s.Path, err)
	}

	env, err := godotenv.Unmarshal(string(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing %s: %v", ErrConfigUnavailable, s.Path, err)
	}

	c := Credentials{
		ClientID:       env[KeyClientID],
		ClientSecret:   env[KeyClientSecret],
		RedirectURI:    env[KeyRedirectURI],
		OrganizationID: env[KeyOrganizationID],
		PersonID:       env[KeyPersonID],
		AccessToken:    env[KeyAccessToken],
		RefreshToken:   env[KeyRefreshToken],
	}

	if v := env[KeyExpiresAt]; v != "" {
		c.ExpiresAt, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s in %s: %v", ErrConfigUnavailable, KeyExpiresAt, s.Path, err)
		}
	}

	return &c, nil
}

// Save writes the token fields and person id back to the env file. Saving
// the same credentials twice leaves the file unchanged.
func (s *Store) Save(c *Credentials) error {
	var expiresAt string
	if !c.ExpiresAt.IsZero() {
		expiresAt = c.ExpiresAt.UTC().Format(time.RFC3339)
	}

	owned := []keyValue{
		{KeyAccessToken, c.AccessToken},
		{KeyRefreshToken, c.RefreshToken},
		{KeyExpiresAt, expiresAt},
		{KeyPersonID, c.PersonID},
	}

	mode := os.FileMode(0600)
	buf, err := ioutil.ReadFile(s.Path)
	switch {
	case err == nil:
		if st, err := os.Stat(s.Path); err == nil {
			mode = st.Mode().Perm()
		}
	case os.IsNotExist(err):
		buf = nil
	default:
		return fmt.Errorf("%w: error reading %s: %v", ErrConfigUnavailable, s.Path, err)
	}

	out := rewrite(string(buf), owned)
	if out == string(buf) {
		return nil
	}

	if err := writeAtomic(s.Path, []byte(out), mode); err != nil {
		return fmt.Errorf("%w: error writing %s: %v", ErrConfigUnavailable, s.Path, err)
	}
	return nil
}

type keyValue struct {
	key   string
	value string
}

// rewrite replaces every line assigning one of the given keys and appends
// the keys that were not found. Keys with an empty value are not appended.
func rewrite(content string, kvs []keyValue) string {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	found := make(map[string]bool)
	for i, line := range lines {
		key, ok := lineKey(line)
		if !ok {
			continue
		}
		for _, kv := range kvs {
			if kv.key == key {
				lines[i] = kv.key + "=" + formatValue(kv.value) + lineEnding(line)
				found[key] = true
				break
			}
		}
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
	}

	for _, kv := range kvs {
		if found[kv.key] || kv.value == "" {
			continue
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
		b.WriteString(kv.key + "=" + formatValue(kv.value) + "\n")
	}

	return b.String()
}

// lineKey returns the key assigned on an env file line
func lineKey(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", false
	}
	s = strings.TrimPrefix(s, "export ")
	pos := strings.IndexAny(s, "=:")
	if pos <= 0 {
		return "", false
	}
	return strings.TrimSpace(s[:pos]), true
}

func lineEnding(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	}
	return ""
}

// formatValue quotes a value when godotenv would otherwise misread it
func formatValue(v string) string {
	if !strings.ContainsAny(v, " \t#\"'\\\n\r$") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "$", `\$`)
	return `"` + r.Replace(v) + `"`
}

// writeAtomic writes to a temporary file next to path and renames it into place
func writeAtomic(path string, buf []byte, mode os.FileMode) error {
	f, err := ioutil.TempFile(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(f.Name(), mode); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
