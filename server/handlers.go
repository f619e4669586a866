// Package server exposes the HTTP API: health, status, metrics, the overlay
// websocket, and the admin controls. It includes permissive CORS for
// development and injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/stream-herald/feature"
	"github.com/onnwee/stream-herald/twitch"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// OverlayHub is the websocket fan-out surface the mux exposes at /ws.
type OverlayHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Deps carries the subsystems the HTTP handlers read and control.
type Deps struct {
	Hub        OverlayHub
	Session    *twitch.Session
	Killswitch *feature.Killswitch
	Giveaway   *feature.Giveaway
	Focus      *feature.Focus
	First      *feature.FirstChatter
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	ctx        context.Context
	deps       Deps
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, deps Deps) *Handlers {
	return &Handlers{
		db:         db,
		ctx:        ctx,
		deps:       deps,
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// If we're still over the limit after cleanup, refuse to add more
	if len(h.stateStore) >= maxOAuthStates {
		// Don't add the state - this will cause the OAuth flow to fail
		// which is better than a memory exhaustion attack
		return
	}

	h.stateStore[state] = expiry
}

// consumeOAuthState validates and removes a state token. Returns false for
// unknown or expired states.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return time.Now().Before(exp)
}
