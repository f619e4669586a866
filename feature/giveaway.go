package feature

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/telemetry"
)

// Winner is one drawn giveaway entrant.
type Winner struct {
	UserID      string
	DisplayName string
}

// Giveaway tracks entrants in the giveaway_entries table. Entries persist
// across draws and are only cleared by the next Start, so a second pick from
// the same pool is possible on purpose.
type Giveaway struct {
	db   *sql.DB
	bus  Publisher
	rand *rand.Rand
}

func NewGiveaway(dbh *sql.DB, bus Publisher) *Giveaway {
	return &Giveaway{db: dbh, bus: bus, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Start opens a fresh giveaway by clearing all previous entries. Idempotent.
func (g *Giveaway) Start(ctx context.Context) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM giveaway_entries`)
	if err != nil {
		return err
	}
	cleared, _ := res.RowsAffected()
	slog.Info("giveaway started", slog.Int64("cleared_entries", cleared))
	return nil
}

// Join records an entrant. Re-joining is a silent no-op.
func (g *Giveaway) Join(ctx context.Context, userID, displayName string) error {
	if userID == "" {
		return nil
	}
	res, err := g.db.ExecContext(ctx,
		`INSERT INTO giveaway_entries (user_id, display_name, joined_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO NOTHING`, userID, displayName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		telemetry.GiveawayJoin()
	}
	return nil
}

// PickWinners draws up to n distinct winners from entries joined at or before
// cutoff. Returns nil when there is nothing to draw from. One giveawaywin
// event is published per winner.
func (g *Giveaway) PickWinners(ctx context.Context, n int, cutoff time.Time) ([]Winner, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := g.db.QueryContext(ctx,
		`SELECT user_id, display_name FROM giveaway_entries WHERE joined_at <= $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pool []Winner
	for rows.Next() {
		var w Winner
		if err := rows.Scan(&w.UserID, &w.DisplayName); err != nil {
			return nil, err
		}
		pool = append(pool, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	winners := drawWinners(g.rand, pool, n)
	for _, w := range winners {
		if g.bus != nil {
			g.bus.Publish(event.New(event.TypeGiveawayWin, &event.UserRef{ID: w.UserID, Name: w.DisplayName, DisplayName: w.DisplayName}, 1))
		}
	}
	if len(winners) > 0 {
		slog.Info("giveaway winners drawn", slog.Int("requested", n), slog.Int("drawn", len(winners)))
	}
	return winners, nil
}

// drawWinners shuffles the pool and takes the first min(n, len) entries, so a
// user can win at most once per draw.
func drawWinners(r *rand.Rand, pool []Winner, n int) []Winner {
	if len(pool) == 0 {
		return nil
	}
	r.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}
