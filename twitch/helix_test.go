package twitch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// rewriteTransport redirects api.twitch.tv requests to a test server.
type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(t.host, "http://")
	return t.Transport.RoundTrip(req)
}

func helixClient(t *testing.T, handler http.HandlerFunc) *HelixClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	ts := &TokenSource{ClientID: "test-client-id", ClientSecret: "test-secret"}
	ts.SetToken("test-token", time.Now().Add(1*time.Hour))
	return &HelixClient{
		AppTokenSource: ts,
		UserTokens:     func(ctx context.Context) (string, error) { return "user-token", nil },
		ClientID:       "test-client-id",
		BroadcasterID:  "b-1",
		HTTPClient: &http.Client{Transport: &rewriteTransport{
			Transport: http.DefaultTransport,
			host:      server.URL,
		}},
	}
}

func TestHelixClientGetUserID(t *testing.T) {
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/users" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Client-Id") != "test-client-id" {
			t.Errorf("missing Client-Id header")
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("wrong Authorization header %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"id": "12345", "login": r.URL.Query().Get("login")}},
		})
	})

	id, err := client.GetUserID(context.Background(), "testuser")
	if err != nil {
		t.Fatalf("GetUserID() error = %v", err)
	}
	if id != "12345" {
		t.Errorf("GetUserID() = %s, want 12345", id)
	}

	if _, err := client.GetUserID(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "login empty") {
		t.Errorf("empty login error = %v", err)
	}
}

func TestHelixClientGetUserIDNotFound(t *testing.T) {
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
	})
	_, err := client.GetUserID(context.Background(), "nonexistent")
	if err == nil || !strings.Contains(err.Error(), "user not found") {
		t.Errorf("GetUserID() error = %v, want user not found", err)
	}
}

func TestHelixClientGetStreams(t *testing.T) {
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("user_login"); got != "livechannel" {
			t.Fatalf("user_login=%q want livechannel", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{
				"title":      "Live Now",
				"language":   "de",
				"started_at": "2024-10-15T14:30:00Z",
			}},
		})
	})

	streams, err := client.GetStreams(context.Background(), "livechannel")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	if streams[0].Title != "Live Now" || streams[0].Language != "de" {
		t.Errorf("stream = %+v", streams[0])
	}
	want := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)
	if !streams[0].StartedAt.Equal(want) {
		t.Errorf("started_at = %v, want %v", streams[0].StartedAt, want)
	}
}

func TestHelixClientGetStreamsOffline(t *testing.T) {
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
	})
	streams, err := client.GetStreams(context.Background(), "quietchannel")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("offline channel should yield no streams, got %d", len(streams))
	}
}

func TestHelixClientSendChatAnnouncement(t *testing.T) {
	var gotBody map[string]string
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/chat/announcements" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer user-token" {
			t.Errorf("announcement must use the user token, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("broadcaster_id") != "b-1" || r.URL.Query().Get("moderator_id") != "m-1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.SendChatAnnouncement(context.Background(), "m-1", "hello chat", "primary"); err != nil {
		t.Fatalf("SendChatAnnouncement() error = %v", err)
	}
	if gotBody["message"] != "hello chat" || gotBody["color"] != "primary" {
		t.Errorf("body = %v", gotBody)
	}
	if err := client.SendChatAnnouncement(context.Background(), "m-1", "", ""); err == nil {
		t.Error("empty message should be rejected")
	}
}

func TestHelixClientUpdateCustomRewardPaused(t *testing.T) {
	var gotBody map[string]bool
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/channel_points/custom_rewards" || r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("id") != "reward-1" {
			t.Errorf("reward id = %q", r.URL.Query().Get("id"))
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]bool{{"is_paused": gotBody["is_paused"]}}})
	})

	if err := client.UpdateCustomRewardPaused(context.Background(), "reward-1", true); err != nil {
		t.Fatalf("UpdateCustomRewardPaused() error = %v", err)
	}
	if !gotBody["is_paused"] {
		t.Error("is_paused not sent")
	}
}

func TestHelixClientGetCustomReward(t *testing.T) {
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/channel_points/custom_rewards" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("broadcaster_id") != "b-1" {
			t.Errorf("broadcaster_id = %q", r.URL.Query().Get("broadcaster_id"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": r.URL.Query().Get("id"), "title": "Hydrate", "is_paused": false},
			},
		})
	})

	reward, err := client.GetCustomReward(context.Background(), "reward-1")
	if err != nil {
		t.Fatalf("GetCustomReward() error = %v", err)
	}
	if reward.ID != "reward-1" || reward.Title != "Hydrate" || reward.IsPaused {
		t.Errorf("reward = %+v", reward)
	}

	if _, err := client.GetCustomReward(context.Background(), ""); err == nil {
		t.Error("empty reward id should error")
	}
}

func TestHelixClientGetLatestFollowers(t *testing.T) {
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/channels/followers" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"user_id": "u1", "user_login": "fan1", "user_name": "Fan1", "followed_at": "2024-10-15T14:30:00Z"},
				{"user_id": "u2", "user_login": "fan2", "user_name": "Fan2", "followed_at": "2024-10-15T14:00:00Z"},
			},
		})
	})

	followers, err := client.GetLatestFollowers(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetLatestFollowers() error = %v", err)
	}
	if len(followers) != 2 || followers[0].UserLogin != "fan1" {
		t.Errorf("followers = %+v", followers)
	}
}

func TestHelixClient5xxRetry(t *testing.T) {
	attempts := 0
	client := helixClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": "bad gateway"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"id": "u-retry"}},
		})
	})

	id, err := client.GetUserID(context.Background(), "retryuser")
	if err != nil {
		t.Fatalf("GetUserID() error = %v", err)
	}
	if id != "u-retry" || attempts != 2 {
		t.Errorf("id=%q attempts=%d, want u-retry after 2 attempts", id, attempts)
	}
}
