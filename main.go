// Command stream-herald is the main entrypoint for the companion bot and its
// background workers. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the event bus, overlay websocket hub, chat bot, live/follower
//     pollers, timed message scheduler, and OAuth token refresher.
//   - Exposes an HTTP server with /healthz, /status, /ws, /metrics, and the
//     admin controls.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stream-herald/config"
	"github.com/onnwee/stream-herald/cron"
	"github.com/onnwee/stream-herald/db"
	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/feature"
	"github.com/onnwee/stream-herald/oauth"
	"github.com/onnwee/stream-herald/overlay"
	"github.com/onnwee/stream-herald/server"
	"github.com/onnwee/stream-herald/telemetry"
	"github.com/onnwee/stream-herald/timers"
	"github.com/onnwee/stream-herald/twitch"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("stream-herald", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event pipeline: producers publish to the bus, the dispatch loop drains
	// into the websocket hub.
	bus := event.NewBus(0)
	hub := overlay.NewHub()
	go hub.Run(ctx)
	go bus.Run(ctx, hub)

	// Helix client. The app token covers public reads (stream lookups); the
	// stored user token covers announcements, follower reads, and reward pausing.
	appTokens := &twitch.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	helix := &twitch.HelixClient{
		AppTokenSource: appTokens,
		ClientID:       cfg.TwitchClientID,
		UserTokens: func(tctx context.Context) (string, error) {
			access, _, _, _, err := db.GetOAuthToken(tctx, database, "twitch")
			return access, err
		},
	}

	// Best-effort warmup: fetch the app token and resolve the broadcaster id
	// so the first poller tick doesn't pay for it.
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		wctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if tok, err := appTokens.Get(wctx); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
		if cfg.BroadcasterLogin != "" {
			if id, err := helix.GetUserID(wctx, cfg.BroadcasterLogin); err != nil {
				slog.Warn("broadcaster id lookup failed", slog.Any("err", err), slog.String("login", cfg.BroadcasterLogin))
			} else {
				helix.BroadcasterID = id
			}
		}
		cancel()
	}

	// Feature rules
	ks := feature.NewKillswitch()
	counters := feature.NewCounters(database, bus, ks)
	giveaway := feature.NewGiveaway(database, bus)
	first := feature.NewFirstChatter(database, bus, cfg.BroadcasterLogin, cfg.TwitchBotUsername)
	focus := feature.NewFocus(bus, helix, cfg.FocusRewardIDs)

	// Surface misconfigured reward ids at boot instead of at first focus.
	if len(cfg.FocusRewardIDs) > 0 {
		rctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		for _, id := range cfg.FocusRewardIDs {
			if reward, err := helix.GetCustomReward(rctx, id); err != nil {
				slog.Warn("focus reward lookup failed", slog.String("id", id), slog.Any("err", err))
			} else {
				slog.Info("focus reward configured", slog.String("id", id), slog.String("title", reward.Title))
			}
		}
		cancel()
	}

	// Stream session: hooks must be registered before the poller starts.
	session := twitch.NewSession(cfg.StreamLanguage)
	session.OnLive(func() { first.DailyReset() })
	go twitch.StartLivePoller(ctx, session, helix, cfg.TwitchChannel, envDuration("LIVE_POLL_INTERVAL"))
	go twitch.NewFollowerPoller(helix, session, bus).Run(ctx, envDuration("FOLLOW_POLL_INTERVAL"))

	// Timed message table
	registry, err := timers.Load(cfg.TimersFile)
	if err != nil {
		slog.Error("failed to load timers table", slog.Any("err", err), slog.String("path", cfg.TimersFile))
		os.Exit(1)
	}

	// Chat bot (optional: requires chat credentials)
	var bot *twitch.Bot
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat bot disabled", slog.Any("reason", err))
	} else {
		bot = twitch.NewBot(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannel, twitch.BotDeps{
			DB:         database,
			Counters:   counters,
			Giveaway:   giveaway,
			First:      first,
			Focus:      focus,
			Killswitch: ks,
			Session:    session,
		})
		go func() {
			if err := bot.Run(ctx); err != nil {
				slog.Error("chat bot exited with error", slog.Any("err", err))
			}
		}()

		// Timed messages need a chat surface, so the minutely job only runs
		// alongside the bot. The bot's user id moderates announcements.
		moderatorID := ""
		mctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if id, err := helix.GetUserID(mctx, cfg.TwitchBotUsername); err != nil {
			slog.Warn("bot id lookup failed, announcements fall back to plain chat", slog.Any("err", err))
		} else {
			moderatorID = id
		}
		cancel()
		go cron.StartMinutelyJob(ctx, cron.Deps{
			DB:          database,
			Session:     session,
			Registry:    registry,
			Killswitch:  ks,
			Chat:        bot,
			Announcer:   helix,
			Bus:         bus,
			ModeratorID: moderatorID,
		})
	}

	go cron.StartDailyJob(ctx, database, first)

	// Centralized OAuth token refresher
	oauth.StartRefresher(ctx, database, "twitch", 5*time.Minute, 15*time.Minute,
		oauth.TwitchRefresher(cfg.TwitchClientID, cfg.TwitchClientSecret))

	// Client role: mirror an upstream hub's event feed into the local hub.
	if cfg.OverlayFeedURL != "" {
		feed := overlay.NewFeed(cfg.OverlayFeedURL, func(e event.Event) { hub.Broadcast(e) })
		go feed.Run(ctx)
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/ws/admin)
	go func() {
		deps := server.Deps{
			Hub:        hub,
			Session:    session,
			Killswitch: ks,
			Giveaway:   giveaway,
			Focus:      focus,
			First:      first,
		}
		if err := server.Start(ctx, database, cfg.HTTPAddr, deps); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// envDuration parses a duration from the environment, returning zero (use the
// caller's default) when unset or malformed.
func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", slog.String("key", key), slog.String("value", v))
		return 0
	}
	return d
}
