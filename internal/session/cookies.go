package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cookie is the persisted subset of a session cookie.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
	Secure  bool      `json:"secure,omitempty"`
}

// CookieStore persists session cookies as one JSON blob per domain, so a
// future session can warm-start and skip a repeat challenge.
type CookieStore struct {
	dir string
}

// NewCookieStore creates a store rooted at dir, creating it if needed.
func NewCookieStore(dir string) (*CookieStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cookie directory: %w", err)
	}
	return &CookieStore{dir: dir}, nil
}

// Save writes the cookies for a domain, replacing any previous blob.
func (cs *CookieStore) Save(domain string, cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cookies: %w", err)
	}
	if err := os.WriteFile(cs.path(domain), data, 0o600); err != nil {
		return fmt.Errorf("writing cookies: %w", err)
	}
	return nil
}

// Load returns the cookies stored for a domain, or nil if none exist.
func (cs *CookieStore) Load(domain string) ([]Cookie, error) {
	data, err := os.ReadFile(cs.path(domain))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decoding cookies for %s: %w", domain, err)
	}
	return cookies, nil
}

func (cs *CookieStore) path(domain string) string {
	return filepath.Join(cs.dir, domain+".json")
}
