// Package cron runs the background cadences: the minutely timed-message
// dispatch and the daily reset/maintenance job. Jobs are started as
// fire-and-forget goroutines from main and stop with the root context.
package cron

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/onnwee/stream-herald/db"
	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/feature"
	"github.com/onnwee/stream-herald/telemetry"
	"github.com/onnwee/stream-herald/timers"
	"github.com/onnwee/stream-herald/twitch"
)

const dailyRunHourUTC = 4

// Announcer is the Helix surface the minutely job uses for announce-flagged
// messages.
type Announcer interface {
	SendChatAnnouncement(ctx context.Context, moderatorID, message, color string) error
}

// Deps carries everything the minutely job reads. Missing optional pieces
// (Announcer, Bus, DB) degrade to plain chat lines without bookkeeping.
type Deps struct {
	DB          *sql.DB
	Session     *twitch.Session
	Registry    *timers.Registry
	Killswitch  *feature.Killswitch
	Chat        twitch.Chat
	Announcer   Announcer
	Bus         feature.Publisher
	ModeratorID string
}

// StartMinutelyJob dispatches the timed message scheduled for the current
// stream minute. Ticks while offline or with the killswitch on are skipped;
// missed minutes are not queued or backfilled.
func StartMinutelyJob(ctx context.Context, deps Deps) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	slog.Info("minutely job started")
	lastSent := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if minute, sent := runMinutely(ctx, deps, time.Now(), lastSent); sent {
			lastSent = minute
		}
	}
}

// runMinutely performs one tick. Returns the dispatched minute and whether
// anything was sent.
func runMinutely(ctx context.Context, deps Deps, now time.Time, lastSent int) (int, bool) {
	if deps.Session == nil || deps.Registry == nil {
		return 0, false
	}
	start, active := deps.Session.StartedAt()
	if !active {
		return 0, false
	}
	if deps.Killswitch != nil && deps.Killswitch.Enabled() {
		return 0, false
	}
	minute := minutesElapsed(now, start)
	if minute == lastSent {
		return 0, false
	}
	def, ok := deps.Registry.Lookup(minute)
	if !ok {
		return 0, false
	}
	msg := def.Localized(deps.Session.Language())
	if msg == "" {
		return 0, false
	}

	if def.Announce && deps.Announcer != nil {
		if err := deps.Announcer.SendChatAnnouncement(ctx, deps.ModeratorID, msg, ""); err != nil {
			slog.Warn("announcement failed, falling back to chat", slog.Int("minute", minute), slog.Any("err", err))
			if deps.Chat != nil {
				deps.Chat.Say(msg)
			}
		}
	} else if deps.Chat != nil {
		deps.Chat.Say(msg)
	}

	if deps.Bus != nil {
		deps.Bus.Publish(event.New(event.TypeTimedMessage, nil, minute))
	}
	telemetry.TimedMessage()
	if deps.DB != nil {
		if err := db.KVSet(ctx, deps.DB, "job_minutely_last", now.UTC().Format(time.RFC3339)); err != nil {
			slog.Warn("minutely job marker", slog.Any("err", err))
		}
	}
	slog.Info("timed message dispatched", slog.Int("minute", minute), slog.Bool("announce", def.Announce))
	return minute, true
}

// minutesElapsed is the whole number of minutes between start and now, never
// negative.
func minutesElapsed(now, start time.Time) int {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// StartDailyJob clears the first-chatter slot and runs store maintenance at
// 04:00 UTC every day, regardless of stream state.
func StartDailyJob(ctx context.Context, dbh *sql.DB, first *feature.FirstChatter) {
	slog.Info("daily job started", slog.Int("hour_utc", dailyRunHourUTC))
	for {
		next := nextDailyRun(time.Now().UTC())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		if first != nil {
			first.DailyReset()
		}
		if dbh != nil {
			db.DailyMaintenance(ctx, dbh)
			if err := db.KVSet(ctx, dbh, "job_daily_last", time.Now().UTC().Format(time.RFC3339)); err != nil {
				slog.Warn("daily job marker", slog.Any("err", err))
			}
		}
		slog.Info("daily job ran", slog.Time("next", nextDailyRun(time.Now().UTC())))
	}
}

// nextDailyRun returns the next 04:00 UTC strictly after now.
func nextDailyRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), dailyRunHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
