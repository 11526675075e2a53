// Package auth pairs an in-game authentication request with a
// browser-delivered OAuth code and issues the API tokens that privileged
// routes check against the key-value store.
package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obstacle-community/records/internal/domain"
)

// StateID is the opaque id shared between the game client and the browser
// for the lifetime of one rendezvous.
type StateID string

type cellState int

const (
	stateGameWaiting cellState = iota + 1
	stateBrowserDelivered
	stateConfirmed
)

// cell is one rendezvous in flight. codeCh carries the browser's code to
// the waiting game client exactly once; doneCh is closed when the game
// client settles the outcome, with failed latched before the close.
type cell struct {
	state     cellState
	codeCh    chan string
	doneCh    chan struct{}
	code      string
	webToken  string
	failed    bool
	createdAt time.Time
}

// Rendezvous is the in-process table pairing game clients with browsers.
// Every wait is bounded by timeout; an entry that fails or expires is
// removed, and any later operation on it reports StateNotReceived.
type Rendezvous struct {
	mu      sync.Mutex
	cells   map[StateID]*cell
	timeout time.Duration
	limiter *Limiter
	logger  *slog.Logger
	stopCh  chan struct{}
}

// NewRendezvous creates the rendezvous table. limiter bounds RequestAuth
// per source.
func NewRendezvous(timeout time.Duration, limiter *Limiter, logger *slog.Logger) *Rendezvous {
	r := &Rendezvous{
		cells:   make(map[StateID]*cell),
		timeout: timeout,
		limiter: limiter,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go r.reapLoop()
	return r
}

// Close stops the background reaper.
func (r *Rendezvous) Close() {
	close(r.stopCh)
	r.limiter.Close()
}

// RequestAuth opens a fresh rendezvous for the game client identified by
// source, refusing sources that already opened too many.
func (r *Rendezvous) RequestAuth(source string) (StateID, error) {
	if !r.limiter.Allow(source) {
		return "", &domain.StateError{Kind: domain.StateTooManyRequests}
	}

	state := StateID(uuid.NewString())
	r.mu.Lock()
	r.cells[state] = &cell{
		state:     stateGameWaiting,
		codeCh:    make(chan string, 1),
		doneCh:    make(chan struct{}),
		createdAt: time.Now(),
	}
	r.mu.Unlock()

	r.logger.Debug("auth rendezvous opened", "state", string(state))
	return state, nil
}

// WaitForOAuth suspends the game client until the browser delivers a code,
// then runs verify on it and returns the delivered code. A rejected code or
// an expired wait removes the entry.
func (r *Rendezvous) WaitForOAuth(ctx context.Context, state StateID, verify func(code string) bool) (string, error) {
	r.mu.Lock()
	c, ok := r.cells[state]
	if !ok {
		r.mu.Unlock()
		return "", &domain.StateError{Kind: domain.StateNotReceived}
	}
	// the browser may have delivered between the two game requests; the
	// buffered code is still there to receive
	if c.state != stateGameWaiting && c.state != stateBrowserDelivered {
		r.mu.Unlock()
		return "", &domain.StateError{Kind: domain.StateInvalidAuthState}
	}
	codeCh := c.codeCh
	r.mu.Unlock()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case code := <-codeCh:
		if !verify(code) {
			r.remove(state)
			return "", &domain.StateError{Kind: domain.StateForbidden}
		}
		return code, nil
	case <-timer.C:
		r.remove(state)
		return "", &domain.StateError{Kind: domain.StateTimeout}
	case <-ctx.Done():
		r.remove(state)
		return "", &domain.StateError{Kind: domain.StateTimeout}
	}
}

// NotifyInGame delivers the browser's code to the game client, advancing
// the rendezvous to BrowserDelivered. A second delivery finds the state
// already advanced and fails without disturbing the in-flight handoff.
func (r *Rendezvous) NotifyInGame(state StateID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cells[state]
	if !ok {
		return &domain.StateError{Kind: domain.StateNotReceived}
	}
	if c.state != stateGameWaiting {
		return &domain.StateError{Kind: domain.StateInvalidAuthState}
	}

	select {
	case c.codeCh <- code:
		c.state = stateBrowserDelivered
		c.code = code
		return nil
	default:
		return &domain.StateError{Kind: domain.StateInvalidAuthState}
	}
}

// ValidateCode settles the rendezvous from the game side: a matching code
// confirms it and wakes the browser with its half of the token pair, a
// mismatch tears the whole entry down for both sides.
func (r *Rendezvous) ValidateCode(state StateID, code, webToken string) error {
	r.mu.Lock()
	c, ok := r.cells[state]
	if !ok {
		r.mu.Unlock()
		return &domain.StateError{Kind: domain.StateNotReceived}
	}
	if c.state != stateBrowserDelivered {
		r.mu.Unlock()
		return &domain.StateError{Kind: domain.StateInvalidAuthState}
	}

	if subtle.ConstantTimeCompare([]byte(c.code), []byte(code)) != 1 {
		c.failed = true
		close(c.doneCh)
		delete(r.cells, state)
		r.mu.Unlock()
		return &domain.StateError{Kind: domain.StateInvalidCode}
	}

	c.state = stateConfirmed
	c.webToken = webToken
	close(c.doneCh)
	r.mu.Unlock()

	r.logger.Debug("auth rendezvous confirmed", "state", string(state))
	return nil
}

// WaitCodeValidation suspends the browser until the game client settles
// the rendezvous, returning the browser's token on success.
func (r *Rendezvous) WaitCodeValidation(ctx context.Context, state StateID) (string, error) {
	r.mu.Lock()
	c, ok := r.cells[state]
	if !ok {
		r.mu.Unlock()
		return "", &domain.StateError{Kind: domain.StateNotReceived}
	}
	doneCh := c.doneCh
	r.mu.Unlock()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case <-doneCh:
		r.mu.Lock()
		failed := c.failed
		webToken := c.webToken
		r.mu.Unlock()
		if failed {
			return "", &domain.StateError{Kind: domain.StateInvalidCode}
		}
		return webToken, nil
	case <-timer.C:
		r.remove(state)
		return "", &domain.StateError{Kind: domain.StateTimeout}
	case <-ctx.Done():
		return "", &domain.StateError{Kind: domain.StateTimeout}
	}
}

func (r *Rendezvous) remove(state StateID) {
	r.mu.Lock()
	delete(r.cells, state)
	r.mu.Unlock()
}

// reapLoop drops entries that outlived two full wait windows; every
// bounded wait has long since returned on those.
func (r *Rendezvous) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * r.timeout)
			r.mu.Lock()
			for state, c := range r.cells {
				if c.createdAt.Before(cutoff) {
					delete(r.cells, state)
				}
			}
			r.mu.Unlock()
		}
	}
}
