package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// HandleAdminGiveawayStart opens a fresh giveaway, clearing previous entries.
func (h *Handlers) HandleAdminGiveawayStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Giveaway == nil {
		http.Error(w, "giveaway not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.deps.Giveaway.Start(r.Context()); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// HandleAdminGiveawayPick draws winners from the current entry pool.
func (h *Handlers) HandleAdminGiveawayPick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Giveaway == nil {
		http.Error(w, "giveaway not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	winners, err := h.deps.Giveaway.PickWinners(r.Context(), req.Count, time.Now())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]string, 0, len(winners))
	for _, win := range winners {
		out = append(out, map[string]string{"user_id": win.UserID, "display_name": win.DisplayName})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "winners": out})
}

// HandleAdminKillswitch sets or toggles the killswitch.
func (h *Handlers) HandleAdminKillswitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Killswitch == nil {
		http.Error(w, "killswitch not configured", http.StatusServiceUnavailable)
		return
	}
	// Body {"enabled": bool} forces a state; an empty body toggles.
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	enabled := h.deps.Killswitch.Toggle(req.Enabled)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "enabled": enabled})
}

// HandleAdminFocus starts or stops focus mode.
func (h *Handlers) HandleAdminFocus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Focus == nil {
		http.Error(w, "focus not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Minutes int  `json:"minutes"`
		Off     bool `json:"off"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Off {
		h.deps.Focus.Set(r.Context(), false, 0)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "active": false})
		return
	}
	// Handle arms the auto-off countdown alongside activation.
	minutes := h.deps.Focus.Handle(r.Context(), strconv.Itoa(req.Minutes))
	if minutes == 0 {
		http.Error(w, "minutes must be positive", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "active": true, "minutes": minutes})
}
