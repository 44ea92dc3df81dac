// Package session wraps one navigation handle and masks adversarial
// verification interstitials from callers: Get either returns usable page
// content or a definitive failure.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"
)

// State is the position of the session in the challenge-detection machine.
type State int

const (
	StateNavigating State = iota
	StateChallengeSuspected
	StateChallengeConfirmed
	StateSettling
	StateReady
	StateBlocked
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateNavigating:
		return "navigating"
	case StateChallengeSuspected:
		return "challenge-suspected"
	case StateChallengeConfirmed:
		return "challenge-confirmed"
	case StateSettling:
		return "settling"
	case StateReady:
		return "ready"
	case StateBlocked:
		return "blocked"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// ErrBlocked is a definitive failure: the challenge never cleared within the
// maximum wait. Not retried automatically.
var ErrBlocked = errors.New("challenge did not clear")

// ErrTimedOut is a transport-level failure. Callers may retry with a short
// backoff.
var ErrTimedOut = errors.New("navigation timed out")

// Navigator is the underlying page handle. Implementations are not safe for
// concurrent navigations; each Session owns exactly one Navigator.
type Navigator interface {
	// Navigate loads target and returns the page content.
	Navigate(ctx context.Context, target string) (string, error)

	// Content re-reads the current page without a full navigation.
	Content(ctx context.Context) (string, error)

	// Interact emits a lightweight user-like action (scroll, poke). Some
	// verification systems require observed activity before clearing.
	Interact(ctx context.Context) error

	// WaitIdle waits for the network-idle condition, bounded by timeout.
	WaitIdle(ctx context.Context, timeout time.Duration) error

	// Cookies and SetCookies expose the session's cookie state for
	// persistence and warm starts.
	Cookies(u *url.URL) []Cookie
	SetCookies(u *url.URL, cookies []Cookie)
}

// Options tune the challenge state machine.
type Options struct {
	PollInterval   time.Duration // challenge re-check interval
	MaxWait        time.Duration // give up (Blocked) after this long challenged
	SettleChecks   int           // consecutive clear checks required
	SettleInterval time.Duration
	IdleTimeout    time.Duration
	Markers        []string // lowercase substrings that identify a challenge page

	// ContentReady reports whether the page carries the expected real
	// content. Site-specific; injected by the caller.
	ContentReady func(html string) bool
}

// DefaultOptions mirror the intervals that survive the challenge in practice.
func DefaultOptions() Options {
	return Options{
		PollInterval:   3 * time.Second,
		MaxWait:        60 * time.Second,
		SettleChecks:   3,
		SettleInterval: 500 * time.Millisecond,
		IdleTimeout:    5 * time.Second,
		Markers: []string{
			"just a moment",
			"checking your browser",
			"challenges.cloudflare.com",
			"please unblock",
		},
	}
}

// Session drives one Navigator through the challenge machine.
type Session struct {
	nav    Navigator
	opts   Options
	state  State
	store  *CookieStore
	warmed bool
}

// New creates a session over nav.
func New(nav Navigator, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.SettleChecks <= 0 {
		opts.SettleChecks = 3
	}
	if opts.SettleInterval <= 0 {
		opts.SettleInterval = 500 * time.Millisecond
	}
	return &Session{nav: nav, opts: opts, state: StateNavigating}
}

// UseCookieStore enables cookie warm-start and persistence. Cookies are
// loaded before the first navigation and saved once the session reaches
// Ready, so future sessions skip a repeat challenge.
func (s *Session) UseCookieStore(store *CookieStore) {
	s.store = store
}

// State returns the machine's current state.
func (s *Session) State() State {
	return s.state
}

// Get navigates to target and returns page content once the session is
// Ready, or a definitive failure: ErrTimedOut (retryable) or ErrBlocked.
func (s *Session) Get(ctx context.Context, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing target %s: %w", target, err)
	}

	if s.store != nil && !s.warmed {
		if cookies, err := s.store.Load(u.Hostname()); err == nil && len(cookies) > 0 {
			s.nav.SetCookies(u, cookies)
			log.Printf("session: warm-started %d cookies for %s", len(cookies), u.Hostname())
		}
		s.warmed = true
	}

	s.state = StateNavigating
	html, err := s.nav.Navigate(ctx, target)
	if err != nil {
		s.state = StateTimedOut
		return "", fmt.Errorf("navigating %s: %v: %w", target, err, ErrTimedOut)
	}

	deadline := time.Now().Add(s.opts.MaxWait)
	for {
		if s.challenged(html) {
			s.state = StateChallengeSuspected
			log.Printf("session: challenge markers present on %s", target)
			s.state = StateChallengeConfirmed
			html, err = s.pollChallenge(ctx, deadline)
			if err != nil {
				return "", err
			}
		}

		page, settled, err := s.settle(ctx, html)
		if err != nil {
			return "", err
		}
		if settled {
			s.state = StateReady
			s.persistCookies(u)
			return page, nil
		}
		html = page

		if time.Now().After(deadline) {
			s.state = StateBlocked
			return "", fmt.Errorf("%s: %w", target, ErrBlocked)
		}
	}
}

// pollChallenge re-checks the markers on a fixed interval until they clear
// or the deadline passes. Each tick emits a keep-alive interaction.
func (s *Session) pollChallenge(ctx context.Context, deadline time.Time) (string, error) {
	for {
		if time.Now().After(deadline) {
			s.state = StateBlocked
			return "", ErrBlocked
		}
		if err := s.nav.Interact(ctx); err != nil {
			s.state = StateTimedOut
			return "", fmt.Errorf("keep-alive: %v: %w", err, ErrTimedOut)
		}
		if err := sleepCtx(ctx, s.opts.PollInterval); err != nil {
			return "", err
		}
		html, err := s.nav.Content(ctx)
		if err != nil {
			s.state = StateTimedOut
			return "", fmt.Errorf("re-reading page: %v: %w", err, ErrTimedOut)
		}
		if !s.challenged(html) {
			return html, nil
		}
	}
}

// settle waits for network idle, then re-confirms marker absence several
// consecutive times. A challenge silently re-appearing sends the caller back
// to the confirmed state; settled is only true when the page stays clear and
// the required content marker is present.
func (s *Session) settle(ctx context.Context, html string) (string, bool, error) {
	s.state = StateSettling
	if s.opts.IdleTimeout > 0 {
		if err := s.nav.WaitIdle(ctx, s.opts.IdleTimeout); err != nil && ctx.Err() != nil {
			return "", false, ctx.Err()
		}
	}

	for i := 0; i < s.opts.SettleChecks; i++ {
		if err := sleepCtx(ctx, s.opts.SettleInterval); err != nil {
			return "", false, err
		}
		fresh, err := s.nav.Content(ctx)
		if err != nil {
			s.state = StateTimedOut
			return "", false, fmt.Errorf("re-reading page: %v: %w", err, ErrTimedOut)
		}
		html = fresh
		if s.challenged(html) {
			return html, false, nil
		}
	}

	if s.opts.ContentReady != nil && !s.opts.ContentReady(html) {
		return html, false, nil
	}
	return html, true, nil
}

func (s *Session) challenged(html string) bool {
	lower := strings.ToLower(html)
	for _, m := range s.opts.Markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (s *Session) persistCookies(u *url.URL) {
	if s.store == nil {
		return
	}
	cookies := s.nav.Cookies(u)
	if len(cookies) == 0 {
		return
	}
	if err := s.store.Save(u.Hostname(), cookies); err != nil {
		log.Printf("session: failed to persist cookies for %s: %v", u.Hostname(), err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
