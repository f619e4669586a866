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

func tokenServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *http.Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, &http.Client{Transport: &tokenTransport{host: server.URL}}
}

func TestTokenSourceGetCached(t *testing.T) {
	callCount := 0
	_, client := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token-123",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	})

	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", HTTPClient: client}
	ctx := context.Background()

	token1, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token1 != "test-token-123" {
		t.Errorf("Get() = %s, want test-token-123", token1)
	}
	if callCount != 1 {
		t.Errorf("expected 1 API call, got %d", callCount)
	}

	// Second call should use the cache.
	token2, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token2 != token1 || callCount != 1 {
		t.Errorf("cached Get() = %s (calls %d), want %s with 1 call", token2, callCount, token1)
	}
}

func TestTokenSourceForceRefresh(t *testing.T) {
	callCount := 0
	_, client := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-" + string(rune('0'+callCount)),
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	})

	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", HTTPClient: client}
	ctx := context.Background()

	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	token, err := ts.ForceRefresh(ctx)
	if err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if token != "token-2" || callCount != 2 {
		t.Errorf("ForceRefresh() = %s (calls %d), want token-2 with 2 calls", token, callCount)
	}
}

func TestTokenSourceGetMissingCredentials(t *testing.T) {
	ts := &TokenSource{}
	_, err := ts.Get(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing client id/secret") {
		t.Errorf("Get() error = %v, want error about missing credentials", err)
	}
}

func TestTokenSourceGetServerError(t *testing.T) {
	_, client := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	})
	ts := &TokenSource{ClientID: "bad-client", ClientSecret: "bad-secret", HTTPClient: client}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Error("Get() with server error should return error")
	}
}

func TestTokenSourceGetEmptyToken(t *testing.T) {
	_, client := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	})
	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", HTTPClient: client}
	_, err := ts.Get(context.Background())
	if err == nil || !strings.Contains(err.Error(), "empty access_token") {
		t.Errorf("Get() error = %v, want error about empty access_token", err)
	}
}

func TestTokenSourceConcurrentAccess(t *testing.T) {
	callCount := 0
	_, client := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	})

	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", HTTPClient: client}
	ctx := context.Background()

	results := make(chan string, 5)
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			token, err := ts.Get(ctx)
			if err != nil {
				errs <- err
			} else {
				results <- token
			}
		}()
	}
	for i := 0; i < 5; i++ {
		select {
		case err := <-errs:
			t.Errorf("Get() error = %v", err)
		case token := <-results:
			if token != "test-token" {
				t.Errorf("Get() = %s, want test-token", token)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for concurrent Gets")
		}
	}
	// The single-flight refresh should keep duplicate fetches minimal.
	if callCount > 2 {
		t.Errorf("expected at most 2 API calls with concurrent access, got %d", callCount)
	}
}

// tokenTransport redirects id.twitch.tv requests to a test server.
type tokenTransport struct {
	host string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	if t.host != "" {
		host := strings.TrimPrefix(t.host, "http://")
		req.URL.Host = host
	}
	return http.DefaultTransport.RoundTrip(req)
}
