package feature

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/stream-herald/event"
)

// RewardPauser is the Helix surface focus mode needs.
type RewardPauser interface {
	UpdateCustomRewardPaused(ctx context.Context, rewardID string, paused bool) error
}

// Focus pauses distracting channel-point rewards for a timed window. A single
// timer slot is kept: starting focus again re-arms the countdown instead of
// stacking timers.
type Focus struct {
	bus       Publisher
	helix     RewardPauser
	rewardIDs []string

	mu    sync.Mutex
	timer *time.Timer
	// gen invalidates in-flight countdown callbacks: every re-arm or cancel
	// bumps it, and a firing callback only acts if its generation still matches.
	gen uint64
}

func NewFocus(bus Publisher, helix RewardPauser, rewardIDs []string) *Focus {
	return &Focus{bus: bus, helix: helix, rewardIDs: rewardIDs}
}

// Handle parses a chat argument as focus minutes and arms the countdown.
// Non-numeric or non-positive input returns 0 and arms nothing.
func (f *Focus) Handle(ctx context.Context, arg string) int {
	minutes, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || minutes <= 0 {
		return 0
	}
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.gen++
	g := f.gen
	f.timer = time.AfterFunc(time.Duration(minutes)*time.Minute, func() {
		f.expire(g, minutes)
	})
	f.mu.Unlock()
	f.Set(ctx, true, minutes)
	return minutes
}

// expire ends the focus window when the countdown fires. A countdown that was
// superseded by a re-arm or an explicit deactivation after its timer already
// fired is a no-op.
func (f *Focus) expire(gen uint64, minutes int) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.timer = nil
	f.mu.Unlock()
	f.Set(context.Background(), false, minutes)
}

// Set pauses (active=true) or unpauses every configured reward and publishes
// the matching focus event. Reward failures are logged and do not stop the
// remaining rewards from being processed. Deactivation also cancels any
// pending countdown, so calling it twice is harmless.
func (f *Focus) Set(ctx context.Context, active bool, minutes int) {
	if !active {
		f.mu.Lock()
		if f.timer != nil {
			f.timer.Stop()
			f.timer = nil
		}
		f.gen++
		f.mu.Unlock()
	}
	for _, id := range f.rewardIDs {
		if f.helix == nil {
			break
		}
		if err := f.helix.UpdateCustomRewardPaused(ctx, id, active); err != nil {
			slog.Warn("focus reward update failed",
				slog.String("reward_id", id), slog.Bool("paused", active), slog.Any("err", err))
		}
	}
	typ := event.TypeFocusStop
	if active {
		typ = event.TypeFocusStart
	}
	if f.bus != nil {
		f.bus.Publish(event.New(typ, nil, minutes))
	}
	slog.Info("focus mode changed", slog.Bool("active", active), slog.Int("minutes", minutes))
}
