// Command feed-tail connects to a running hub's websocket feed and prints each
// event as a JSON line. Useful for checking what an overlay would receive.
//
// Usage:
//   feed-tail -url ws://localhost:8080/ws
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/overlay"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "hub websocket URL")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	feed := overlay.NewFeed(*url, func(e event.Event) {
		if err := enc.Encode(e); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		}
	})
	feed.Run(ctx)
}
