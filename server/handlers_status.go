package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// HandleConfig handles GET and PUT requests for safe configuration keys.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	// Only allow GET/PUT for known keys; secrets must not be exposed here.
	safeKeys := map[string]bool{
		"LOG_LEVEL":            true,
		"LOG_FORMAT":           true,
		"STREAM_LANGUAGE":      true,
		"TIMERS_FILE":          true,
		"LIVE_POLL_INTERVAL":   true,
		"FOLLOW_POLL_INTERVAL": true,
		"OVERLAY_FEED_URL":     true,
		"RATE_LIMIT_ENABLED":   true,
	}
	switch r.Method {
	case http.MethodGet:
		// Return safe keys with values from kv override if present
		out := map[string]string{}
		for k := range safeKeys {
			var v string
			_ = h.db.QueryRowContext(r.Context(), `SELECT value FROM kv WHERE key=$1`, "cfg:"+k).Scan(&v)
			if v == "" {
				v = os.Getenv(k)
			}
			if v != "" {
				out[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", 400)
			return
		}
		for k, v := range body {
			if !safeKeys[k] {
				continue
			}
			if _, err := h.db.ExecContext(
				r.Context(),
				`INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW()) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
				"cfg:"+k,
				strings.TrimSpace(v),
			); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleStatus returns a lightweight snapshot: session state, killswitch,
// overlay clients, current first chatter, and job markers.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	if s := h.deps.Session; s != nil {
		live := s.Active()
		resp["live"] = live
		resp["language"] = s.Language()
		if startedAt, ok := s.StartedAt(); ok {
			resp["started_at"] = startedAt.Format(time.RFC3339)
			resp["minutes_elapsed"] = int(time.Since(startedAt) / time.Minute)
		}
	}
	if ks := h.deps.Killswitch; ks != nil {
		resp["killswitch"] = ks.Enabled()
	}
	if hub := h.deps.Hub; hub != nil {
		resp["overlay_clients"] = hub.ClientCount()
	}
	if first := h.deps.First; first != nil {
		if u, ok := first.Current(); ok {
			resp["first_chatter"] = u.DisplayName
		}
	}

	// Giveaway pool size
	var entries int
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM giveaway_entries`).Scan(&entries); err == nil {
		resp["giveaway_entries"] = entries
	}

	// Last job timestamps
	for _, k := range []string{"job_minutely_last", "job_daily_last", "job_daily_maintenance_last"} {
		var v string
		_ = h.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, k).Scan(&v)
		if v != "" {
			resp[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
