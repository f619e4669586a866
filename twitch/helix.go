package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	helixBaseURL    = "https://api.twitch.tv/helix"
	helixMaxRetries = 3
)

// UserTokenSource resolves the stored broadcaster/bot user token. Moderator
// and channel-points endpoints refuse app tokens, so those calls go through
// here.
type UserTokenSource func(ctx context.Context) (string, error)

// HelixClient wraps the handful of Helix endpoints the bot needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	UserTokens     UserTokenSource
	ClientID       string
	BroadcasterID  string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) token(ctx context.Context, userScoped bool) (string, error) {
	if userScoped {
		if hc.UserTokens == nil {
			return "", errors.New("no user token source configured")
		}
		return hc.UserTokens(ctx)
	}
	if hc.AppTokenSource == nil {
		return "", errors.New("no app token source configured")
	}
	return hc.AppTokenSource.Get(ctx)
}

// do performs one Helix request with bounded retries: 5xx responses are
// retried, a 401 on an app-token call forces one token refresh. The caller
// owns the returned body.
func (hc *HelixClient) do(ctx context.Context, method, path string, q url.Values, payload any, userScoped bool) (*http.Response, error) {
	tok, err := hc.token(ctx, userScoped)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt < helixMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		var body io.Reader
		if payload != nil {
			b, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, method, helixBaseURL+path, body)
		if err != nil {
			return nil, err
		}
		if q != nil {
			req.URL.RawQuery = q.Encode()
		}
		req.Header.Set("Client-Id", hc.ClientID)
		req.Header.Set("Authorization", "Bearer "+tok)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := hc.http().Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			drainClose(resp)
			lastErr = fmt.Errorf("helix %s %s: %s", method, path, resp.Status)
		case resp.StatusCode == http.StatusUnauthorized && !userScoped:
			drainClose(resp)
			lastErr = fmt.Errorf("helix %s %s: %s", method, path, resp.Status)
			if tok, err = hc.AppTokenSource.ForceRefresh(ctx); err != nil {
				return nil, err
			}
		default:
			return resp, nil
		}
	}
	return nil, lastErr
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	q := url.Values{}
	q.Set("login", login)
	resp, err := hc.do(ctx, http.MethodGet, "/users", q, nil, false)
	if err != nil {
		return "", err
	}
	defer drainClose(resp)
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// Stream is the live-status payload for a channel.
type Stream struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	StartedAt time.Time `json:"started_at"`
}

// GetStreams returns the live streams for a login. An offline channel yields
// an empty slice, not an error.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	q := url.Values{}
	q.Set("user_login", login)
	resp, err := hc.do(ctx, http.MethodGet, "/streams", q, nil, false)
	if err != nil {
		return nil, err
	}
	defer drainClose(resp)
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// SendChatAnnouncement posts a highlighted announcement to the broadcaster's
// chat on behalf of moderatorID. Color may be empty for the channel default.
func (hc *HelixClient) SendChatAnnouncement(ctx context.Context, moderatorID, message, color string) error {
	if message == "" {
		return fmt.Errorf("message empty")
	}
	q := url.Values{}
	q.Set("broadcaster_id", hc.BroadcasterID)
	q.Set("moderator_id", moderatorID)
	payload := map[string]string{"message": message}
	if color != "" {
		payload["color"] = color
	}
	resp, err := hc.do(ctx, http.MethodPost, "/chat/announcements", q, payload, true)
	if err != nil {
		return err
	}
	defer drainClose(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("announcement rejected: %s", resp.Status)
	}
	return nil
}

// UpdateCustomRewardPaused pauses or unpauses one channel-points reward.
func (hc *HelixClient) UpdateCustomRewardPaused(ctx context.Context, rewardID string, paused bool) error {
	if rewardID == "" {
		return fmt.Errorf("rewardID empty")
	}
	q := url.Values{}
	q.Set("broadcaster_id", hc.BroadcasterID)
	q.Set("id", rewardID)
	resp, err := hc.do(ctx, http.MethodPatch, "/channel_points/custom_rewards", q, map[string]bool{"is_paused": paused}, true)
	if err != nil {
		return err
	}
	defer drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reward update rejected: %s", resp.Status)
	}
	return nil
}

// CustomReward is the subset of a channel-points reward the bot cares about.
type CustomReward struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	IsPaused bool   `json:"is_paused"`
}

// GetCustomReward fetches a single channel-points reward by id.
func (hc *HelixClient) GetCustomReward(ctx context.Context, rewardID string) (*CustomReward, error) {
	if rewardID == "" {
		return nil, fmt.Errorf("rewardID empty")
	}
	q := url.Values{}
	q.Set("broadcaster_id", hc.BroadcasterID)
	q.Set("id", rewardID)
	resp, err := hc.do(ctx, http.MethodGet, "/channel_points/custom_rewards", q, nil, true)
	if err != nil {
		return nil, err
	}
	defer drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reward lookup rejected: %s", resp.Status)
	}
	var out struct {
		Data []CustomReward `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("reward %s not found", rewardID)
	}
	return &out.Data[0], nil
}

// Follower is one entry from the channel followers list.
type Follower struct {
	UserID     string    `json:"user_id"`
	UserLogin  string    `json:"user_login"`
	UserName   string    `json:"user_name"`
	FollowedAt time.Time `json:"followed_at"`
}

// GetLatestFollowers returns the most recent followers, newest first.
func (hc *HelixClient) GetLatestFollowers(ctx context.Context, first int) ([]Follower, error) {
	if first <= 0 {
		first = 20
	}
	q := url.Values{}
	q.Set("broadcaster_id", hc.BroadcasterID)
	q.Set("first", fmt.Sprintf("%d", first))
	resp, err := hc.do(ctx, http.MethodGet, "/channels/followers", q, nil, true)
	if err != nil {
		return nil, err
	}
	defer drainClose(resp)
	var body struct {
		Data []Follower `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
