package twitch

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBuildAuthorizeURL(t *testing.T) {
	tests := []struct {
		name        string
		clientID    string
		redirectURI string
		scopes      string
		state       string
		wantErr     bool
		wantParts   []string
	}{
		{
			name:        "valid request",
			clientID:    "test-client-id",
			redirectURI: "http://localhost/callback",
			scopes:      "chat:read chat:edit",
			state:       "random-state",
			wantParts:   []string{"client_id=test-client-id", "state=random-state", "scope="},
		},
		{
			name:        "empty client ID",
			redirectURI: "http://localhost/callback",
			wantErr:     true,
		},
		{
			name:     "empty redirect URI",
			clientID: "client",
			wantErr:  true,
		},
		{
			name:        "comma separated scopes normalized",
			clientID:    "client-id",
			redirectURI: "http://localhost/callback",
			scopes:      "chat:read,chat:edit",
			wantParts:   []string{"scope=chat%3Aread+chat%3Aedit"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, err := BuildAuthorizeURL(tt.clientID, tt.redirectURI, tt.scopes, tt.state)
			if tt.wantErr {
				if err == nil {
					t.Errorf("BuildAuthorizeURL() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildAuthorizeURL() error = %v", err)
			}
			if !strings.HasPrefix(url, "https://id.twitch.tv/oauth2/authorize?") {
				t.Errorf("URL prefix wrong: %s", url)
			}
			for _, part := range tt.wantParts {
				if !strings.Contains(url, part) {
					t.Errorf("URL %s missing %q", url, part)
				}
			}
		})
	}
}

func TestComputeExpiry(t *testing.T) {
	now := time.Now()
	got := ComputeExpiry(3600)
	if got.Before(now.Add(59*time.Minute)) || got.After(now.Add(61*time.Minute)) {
		t.Errorf("ComputeExpiry(3600) = %v, want ~1h out", got)
	}
	// Unknown expiry defaults to an hour.
	got = ComputeExpiry(0)
	if got.Before(now.Add(59*time.Minute)) || got.After(now.Add(61*time.Minute)) {
		t.Errorf("ComputeExpiry(0) = %v, want ~1h out", got)
	}
	got = ComputeExpiry(-5)
	if got.Before(now.Add(59 * time.Minute)) {
		t.Errorf("ComputeExpiry(-5) = %v, want ~1h out", got)
	}
}

func TestExchangeAuthCodeValidation(t *testing.T) {
	if _, err := ExchangeAuthCode(context.Background(), "", "secret", "code", "uri"); err == nil {
		t.Error("missing clientID should error")
	}
	if _, err := ExchangeAuthCode(context.Background(), "id", "secret", "", "uri"); err == nil {
		t.Error("missing code should error")
	}
}

func TestRefreshTokenValidation(t *testing.T) {
	if _, err := RefreshToken(context.Background(), "id", "secret", ""); err == nil {
		t.Error("missing refresh token should error")
	}
}
