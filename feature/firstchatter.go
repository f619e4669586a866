package feature

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"

	"github.com/onnwee/stream-herald/event"
)

// FirstChatter tracks the first person to chat in a stream. The slot is held
// in memory and cleared by DailyReset; stats are persisted per user and per
// stream day. This rule ignores the killswitch so the record survives even
// when automated output is muted.
type FirstChatter struct {
	db  *sql.DB
	bus Publisher

	// lowercased logins excluded from the honor
	broadcaster string
	bot         string

	mu      sync.Mutex
	current *event.UserRef
}

func NewFirstChatter(dbh *sql.DB, bus Publisher, broadcasterLogin, botLogin string) *FirstChatter {
	return &FirstChatter{
		db:          dbh,
		bus:         bus,
		broadcaster: strings.ToLower(broadcasterLogin),
		bot:         strings.ToLower(botLogin),
	}
}

// Set claims the first-chatter slot for user. Returns false when the slot is
// already taken or the user is the broadcaster or the bot itself.
func (f *FirstChatter) Set(ctx context.Context, user event.UserRef) bool {
	login := strings.ToLower(user.Name)
	if login == "" || login == f.broadcaster || login == f.bot {
		return false
	}
	f.mu.Lock()
	if f.current != nil {
		f.mu.Unlock()
		return false
	}
	u := user
	f.current = &u
	f.mu.Unlock()

	if _, err := f.db.ExecContext(ctx,
		`INSERT INTO user_stats (username, first_chats, messages, updated_at) VALUES ($1, 1, 0, NOW())
		 ON CONFLICT (username) DO UPDATE SET first_chats = user_stats.first_chats + 1, updated_at = NOW()`,
		login); err != nil {
		slog.Error("first chatter user stats update failed", slog.String("user", login), slog.Any("err", err))
	}
	if _, err := f.db.ExecContext(ctx,
		`INSERT INTO stream_stats (stream_date, first_chatter, started_at) VALUES (CURRENT_DATE, $1, NOW())
		 ON CONFLICT (stream_date) DO UPDATE SET first_chatter = EXCLUDED.first_chatter`,
		user.DisplayName); err != nil {
		slog.Error("first chatter stream stats update failed", slog.String("user", login), slog.Any("err", err))
	}
	if f.bus != nil {
		f.bus.Publish(event.New(event.TypeFirstChatter, &u, 1))
	}
	slog.Info("first chatter recorded", slog.String("user", user.DisplayName))
	return true
}

// Current returns the holder of the slot, if any.
func (f *FirstChatter) Current() (event.UserRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return event.UserRef{}, false
	}
	return *f.current, true
}

// DailyReset frees the slot for the next stream.
func (f *FirstChatter) DailyReset() {
	f.mu.Lock()
	had := f.current != nil
	f.current = nil
	f.mu.Unlock()
	if had {
		slog.Info("first chatter slot reset")
	}
}
