package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/openai/v1/"
	cfg.APIKey = "gsk_test"
	cfg.Timeout = 5 * time.Second
	return NewClient(cfg, nil)
}

func TestComplete_Success(t *testing.T) {
	var got completionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer gsk_test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","model":"llama-3.3-70b-versatile","choices":[{"index":0,"message":{"role":"assistant","content":"All values normal."}}],"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`))
	})

	text, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are a doctor."},
		{Role: RoleUser, Content: "Analyze this patient data: {}"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "All values normal." {
		t.Errorf("text = %q", text)
	}
	if got.Model != DefaultModel || got.Temperature != 0.7 || got.MaxTokens != 2000 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	})

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", httpErr.StatusCode)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c2","choices":[]}`))
	})
	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestComplete_NoAPIKey(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })
	client.config.APIKey = ""

	_, err := client.Complete(context.Background(), nil)
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
	if calls != 0 {
		t.Errorf("server called %d times without a key", calls)
	}
}

func TestComplete_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Complete(ctx, []Message{{Role: RoleUser, Content: "hi"}}); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestHTTPError_Error(t *testing.T) {
	if got := (&HTTPError{StatusCode: 502}).Error(); got != "HTTP 502" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&HTTPError{StatusCode: 400, Body: "bad"}).Error(); got != "HTTP 400: bad" {
		t.Errorf("Error() = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "overloaded", 512, "overloaded"},
		{"ascii", "abcdef", 3, "abc..."},
		{"multibyte boundary", "Hämoglobin", 2, "H..."},
		{"three byte rune", "€€€", 4, "€..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.n); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestComplete_HTTPErrorBodyStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("a", 511) + strings.Repeat("ü", 10)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(body))
	})

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if !utf8.ValidString(httpErr.Body) {
		t.Errorf("body is not valid UTF-8: %q", httpErr.Body)
	}
}
