package twitch

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/feature"
)

// FollowerPoller watches the channel followers list while the stream is live
// and publishes a follow event for every newly seen follower. The first poll
// after going live only establishes a baseline so historical followers are
// not replayed.
type FollowerPoller struct {
	helix   *HelixClient
	session *Session
	bus     feature.Publisher

	seen     map[string]bool
	baseline bool
}

func NewFollowerPoller(helix *HelixClient, session *Session, bus feature.Publisher) *FollowerPoller {
	return &FollowerPoller{helix: helix, session: session, bus: bus, seen: make(map[string]bool)}
}

// Run polls once per interval until ctx is canceled. Intended as a goroutine.
func (p *FollowerPoller) Run(ctx context.Context, pollEvery time.Duration) {
	if pollEvery <= 0 {
		pollEvery = time.Minute
	}
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	slog.Info("follower poller started", slog.Duration("interval", pollEvery))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !p.session.Active() {
			// Forget the stream's dedupe set so the next stream starts clean.
			if p.baseline {
				p.seen = make(map[string]bool)
				p.baseline = false
			}
			continue
		}
		p.poll(ctx)
	}
}

func (p *FollowerPoller) poll(ctx context.Context) {
	followers, err := p.helix.GetLatestFollowers(ctx, 20)
	if err != nil {
		slog.Debug("follower poll failed", slog.Any("err", err))
		return
	}
	fresh := !p.baseline
	for _, f := range followers {
		if p.seen[f.UserID] {
			continue
		}
		p.seen[f.UserID] = true
		if fresh {
			continue
		}
		if p.bus != nil {
			p.bus.Publish(event.New(event.TypeFollow,
				&event.UserRef{ID: f.UserID, Name: f.UserLogin, DisplayName: f.UserName}, 1))
		}
		slog.Info("new follower", slog.String("user", f.UserLogin))
	}
	p.baseline = true
}
