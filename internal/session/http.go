package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPNavigator is a plain http.Client Navigator. It keeps the last page so
// Content re-reads it and Interact issues a cheap HEAD as keep-alive.
type HTTPNavigator struct {
	client    *http.Client
	userAgent string
	current   *url.URL
	lastHTML  string
}

// NewHTTPNavigator creates a navigator with its own cookie jar.
func NewHTTPNavigator(timeout time.Duration) (*HTTPNavigator, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &HTTPNavigator{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: defaultUserAgent,
	}, nil
}

// Navigate fetches target and remembers it as the current page.
func (n *HTTPNavigator) Navigate(ctx context.Context, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	html, err := n.fetch(ctx, target)
	if err != nil {
		return "", err
	}
	n.current = u
	n.lastHTML = html
	return html, nil
}

// Content re-fetches the current page. Over plain HTTP a challenge clears by
// serving different content on the next request, so a re-fetch doubles as
// the re-check.
func (n *HTTPNavigator) Content(ctx context.Context) (string, error) {
	if n.current == nil {
		return n.lastHTML, nil
	}
	html, err := n.fetch(ctx, n.current.String())
	if err != nil {
		return "", err
	}
	n.lastHTML = html
	return html, nil
}

// Interact issues a HEAD request as the keep-alive action.
func (n *HTTPNavigator) Interact(ctx context.Context) error {
	if n.current == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, n.current.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", n.userAgent)
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// WaitIdle has no in-flight requests to drain over plain HTTP; it only
// debounces briefly so consecutive settle checks are spaced out.
func (n *HTTPNavigator) WaitIdle(ctx context.Context, timeout time.Duration) error {
	d := 100 * time.Millisecond
	if timeout > 0 && timeout < d {
		d = timeout
	}
	return sleepCtx(ctx, d)
}

// Cookies returns the jar's cookies for u in persistable form.
func (n *HTTPNavigator) Cookies(u *url.URL) []Cookie {
	var out []Cookie
	for _, c := range n.client.Jar.Cookies(u) {
		out = append(out, Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
			Secure: c.Secure,
		})
	}
	return out
}

// SetCookies seeds the jar with persisted cookies for u.
func (n *HTTPNavigator) SetCookies(u *url.URL, cookies []Cookie) {
	hc := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc = append(hc, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Domain:  c.Domain,
			Expires: c.Expires,
			Secure:  c.Secure,
		})
	}
	n.client.Jar.SetCookies(u, hc)
}

func (n *HTTPNavigator) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
