// Package feature implements the chat-facing rules of the bot: counters,
// giveaways, first-chatter tracking, focus mode, and the killswitch that can
// silence the automated ones. Each rule lives in its own file and is
// constructed explicitly with the dependencies it needs.
package feature

import (
	"log/slog"
	"sync"
)

// Killswitch is a mutex-guarded flag that gates automated output (counters,
// timed messages). Rules that should keep working regardless, like
// first-chatter tracking, do not consult it.
type Killswitch struct {
	mu      sync.Mutex
	enabled bool
}

func NewKillswitch() *Killswitch { return &Killswitch{} }

// Set forces the switch to the given state.
func (k *Killswitch) Set(enabled bool) {
	k.mu.Lock()
	changed := k.enabled != enabled
	k.enabled = enabled
	k.mu.Unlock()
	if changed {
		slog.Info("killswitch changed", slog.Bool("enabled", enabled))
	}
}

// Toggle sets the switch to *explicit when given, otherwise inverts it.
// Returns the resulting state.
func (k *Killswitch) Toggle(explicit *bool) bool {
	k.mu.Lock()
	prev := k.enabled
	if explicit != nil {
		k.enabled = *explicit
	} else {
		k.enabled = !k.enabled
	}
	next := k.enabled
	k.mu.Unlock()
	if prev != next {
		slog.Info("killswitch changed", slog.Bool("enabled", next))
	}
	return next
}

// Enabled reports whether the switch is on.
func (k *Killswitch) Enabled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.enabled
}
