package event

import (
	"context"
	"log/slog"

	"github.com/onnwee/stream-herald/telemetry"
)

// Sink receives drained events in publish order. The websocket hub implements it.
type Sink interface {
	Broadcast(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Broadcast(e Event) { f(e) }

// Bus decouples producers (feature rules, scheduler) from the transport. Producers
// enqueue without blocking on I/O; a single dispatch loop drains in FIFO order so
// delivery preserves producer order within the process.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given queue depth. Depth <= 0 gets a default
// large enough that drops only happen when the dispatch loop is wedged.
func NewBus(depth int) *Bus {
	if depth <= 0 {
		depth = 256
	}
	return &Bus{ch: make(chan Event, depth)}
}

// Publish enqueues an event. When the queue is full the event is dropped and
// logged; producers are never blocked on transport I/O.
func (b *Bus) Publish(e Event) {
	select {
	case b.ch <- e:
		telemetry.EventPublished(e.Type)
	default:
		slog.Warn("event bus full, dropping event", slog.String("type", e.Type))
		telemetry.EventDropped(e.Type)
	}
}

// Run drains the queue into sink until ctx is canceled. It is the only reader;
// run exactly one per bus.
func (b *Bus) Run(ctx context.Context, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued so shutdown doesn't lose accepted events.
			for {
				select {
				case e := <-b.ch:
					sink.Broadcast(e)
				default:
					slog.Info("event bus stopped")
					return
				}
			}
		case e := <-b.ch:
			sink.Broadcast(e)
		}
	}
}

// Len reports the number of queued events, for the status endpoint.
func (b *Bus) Len() int { return len(b.ch) }
