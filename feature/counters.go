package feature

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/telemetry"
)

// DebounceWindow is the minimum gap between two accepted increments of the
// same counter key.
const DebounceWindow = 60 * time.Second

// Publisher accepts events for fan-out. Satisfied by *event.Bus.
type Publisher interface {
	Publish(event.Event)
}

// Counter is one persisted chat counter.
type Counter struct {
	Key       string
	Value     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Counters increments named counters at most once per debounce window. Values
// only increase; keys are never deleted.
type Counters struct {
	db  *sql.DB
	bus Publisher
	ks  *Killswitch
	now func() time.Time
}

func NewCounters(dbh *sql.DB, bus Publisher, ks *Killswitch) *Counters {
	return &Counters{db: dbh, bus: bus, ks: ks, now: time.Now}
}

// Get returns the counter for key, or ok=false when no row exists.
func (c *Counters) Get(ctx context.Context, key string) (*Counter, bool) {
	if key == "" {
		return nil, false
	}
	cnt := &Counter{Key: key}
	err := c.db.QueryRowContext(ctx,
		`SELECT value, created_at, updated_at FROM counters WHERE key=$1`, key).
		Scan(&cnt.Value, &cnt.CreatedAt, &cnt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Error("counter get failed", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}
	return cnt, true
}

// Update increments key and returns the mutated counter. ok=false covers
// three normal outcomes: empty key, killswitch on, or a second update inside
// the debounce window. A fresh key is inserted with value 1.
func (c *Counters) Update(ctx context.Context, key string) (*Counter, bool) {
	if key == "" {
		return nil, false
	}
	if c.ks != nil && c.ks.Enabled() {
		return nil, false
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("counter update begin failed", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}
	defer func() { _ = tx.Rollback() }()

	now := c.now().UTC()
	cnt := Counter{Key: key}
	err = tx.QueryRowContext(ctx,
		`SELECT value, created_at, updated_at FROM counters WHERE key=$1 FOR UPDATE`, key).
		Scan(&cnt.Value, &cnt.CreatedAt, &cnt.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO counters (key, value, created_at, updated_at) VALUES ($1, 1, $2, $2)`,
			key, now); err != nil {
			slog.Error("counter insert failed", slog.String("key", key), slog.Any("err", err))
			return nil, false
		}
		cnt.Value, cnt.CreatedAt, cnt.UpdatedAt = 1, now, now
	case err != nil:
		slog.Error("counter update read failed", slog.String("key", key), slog.Any("err", err))
		return nil, false
	default:
		if now.Sub(cnt.UpdatedAt) < DebounceWindow {
			telemetry.CounterDebounce()
			return nil, false
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE counters SET value=value+1, updated_at=$2 WHERE key=$1`, key, now); err != nil {
			slog.Error("counter increment failed", slog.String("key", key), slog.Any("err", err))
			return nil, false
		}
		cnt.Value++
		cnt.UpdatedAt = now
	}
	if err := tx.Commit(); err != nil {
		slog.Error("counter update commit failed", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}
	if c.bus != nil {
		c.bus.Publish(event.New(event.TypeCounter, &event.UserRef{Name: cnt.Key, DisplayName: cnt.Key}, int(cnt.Value)))
	}
	return &cnt, true
}
