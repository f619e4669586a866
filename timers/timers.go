// Package timers holds the timed-message table: which message goes out at which
// minute of the stream. The table is loaded once at startup and read-only after.
package timers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Definition is one scheduled message. Messages are keyed by language so the
// scheduler can follow the stream language; Announce selects the Twitch
// announcement API over a plain chat line.
type Definition struct {
	Message  map[string]string `json:"message"`
	Announce bool              `json:"announce"`
}

// Localized resolves the message for lang, falling back to "en". Empty result
// means there is nothing to send.
func (d Definition) Localized(lang string) string {
	if m, ok := d.Message[lang]; ok && m != "" {
		return m
	}
	return d.Message["en"]
}

// Registry maps minutes-since-stream-start to a Definition.
type Registry struct {
	defs map[int]Definition
}

// Load reads the timer table from a JSON file keyed by minute offset, e.g.
//
//	{"15": {"message": {"en": "Remember to hydrate"}, "announce": true}}
//
// A missing file is not an error: the bot runs with no timed messages.
func Load(path string) (*Registry, error) {
	reg := &Registry{defs: make(map[int]Definition)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no timer table found, timed messages disabled", slog.String("path", path))
			return reg, nil
		}
		return nil, fmt.Errorf("read timer table: %w", err)
	}
	var raw map[string]Definition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse timer table: %w", err)
	}
	for key, def := range raw {
		minute, err := strconv.Atoi(key)
		if err != nil || minute < 0 {
			return nil, fmt.Errorf("invalid minute offset %q in timer table", key)
		}
		reg.defs[minute] = def
	}
	slog.Info("timer table loaded", slog.String("path", path), slog.Int("entries", len(reg.defs)))
	return reg, nil
}

// Lookup returns the definition for the given minute, if any.
func (r *Registry) Lookup(minutesElapsed int) (Definition, bool) {
	d, ok := r.defs[minutesElapsed]
	return d, ok
}

// Len reports the number of loaded definitions.
func (r *Registry) Len() int { return len(r.defs) }
