package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"intake/internal/chat"
	"intake/internal/retry"
	"intake/internal/services"
)

func newTestClient(t *testing.T, handler http.Handler) *chat.HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return chat.NewHTTPClient(server.URL, "secret", "guild-1", chat.WithHTTPDoer(server.Client()))
}

func TestSendMessageSendsAuthAndDecodes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /channels/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bot secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var payload struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "m1", "channel_id": "c1", "content": payload.Content})
	})
	client := newTestClient(t, mux)

	msg, err := client.SendMessage(context.Background(), "c1", "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.ID != "m1" || msg.ChannelID != "c1" || msg.Content != "hello" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestRateLimitResponseCarriesRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
		want   time.Duration
	}{
		{name: "body", body: `{"message":"You are being rate limited.","retry_after":1.5,"global":false}`, want: 1500 * time.Millisecond},
		{name: "header", header: "2", body: `{"message":"slow down"}`, want: 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, tt.body)
			}))
			err := client.AddReaction(context.Background(), "c1", "m1", "✅")
			var apiErr *chat.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			wait, ok := retry.RetryAfter(err)
			if !ok || wait != tt.want {
				t.Fatalf("RetryAfter = %s %v, want %s", wait, ok, tt.want)
			}
			if !errors.Is(err, services.ErrTransient) {
				t.Fatalf("expected 429 to be transient, got %v", err)
			}
		})
	}
}

func TestRetryAfterPayloadOnOtherStatusIsRateLimited(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Max number of edits reached","code":20028,"retry_after":1.5}`)
	}))
	_, err := client.EditMessage(context.Background(), "c1", "m1", "hello")
	wait, ok := retry.RetryAfter(err)
	if !ok || wait != 1500*time.Millisecond {
		t.Fatalf("RetryAfter = %s %v, want 1.5s true", wait, ok)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected retry_after payload to be transient, got %v", err)
	}
}

func TestBadRequestWithoutRetryAfterIsNotRateLimited(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Invalid Form Body","code":50035}`)
	}))
	_, err := client.SendMessage(context.Background(), "c1", "hello")
	if _, ok := retry.RetryAfter(err); ok {
		t.Fatal("400 without retry_after must not be a rate-limit signal")
	}
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected ErrExternal marker, got %v", err)
	}
}

func TestNotFoundIsNotRateLimited(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Unknown Channel","code":10003}`)
	}))
	_, err := client.SendMessage(context.Background(), "missing", "hi")
	if _, ok := retry.RetryAfter(err); ok {
		t.Fatal("404 must not be a rate-limit signal")
	}
	var apiErr *chat.APIError
	if !errors.As(err, &apiErr) || !apiErr.NotFound() || apiErr.Code != 10003 {
		t.Fatalf("unexpected error %v", err)
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound marker, got %v", err)
	}
}

func TestStartThreadReusesExistingThread(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"A thread has already been created for this message","code":160004}`)
	}))
	thread, err := client.StartThread(context.Background(), "c1", "m1", "Alice")
	if err != nil {
		t.Fatalf("StartThread failed: %v", err)
	}
	if thread.ID != "m1" || thread.ParentID != "c1" {
		t.Fatalf("unexpected thread %+v", thread)
	}
}

func TestChannelViewersAppliesOverwrites(t *testing.T) {
	const view = "1024"
	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/c1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "c1",
			"guild_id": "guild-1",
			"permission_overwrites": []map[string]any{
				{"id": "guild-1", "type": 0, "allow": "0", "deny": view},
				{"id": "reviewers", "type": 0, "allow": view, "deny": "0"},
				{"id": "u3", "type": 1, "allow": "0", "deny": view},
				{"id": "u4", "type": 1, "allow": view, "deny": "0"},
			},
		})
	})
	mux.HandleFunc("GET /guilds/guild-1/roles", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "guild-1", "permissions": view},
			{"id": "reviewers", "permissions": "0"},
			{"id": "admins", "permissions": "8"},
		})
	})
	mux.HandleFunc("GET /guilds/guild-1/members", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"user": map[string]any{"id": "u1"}, "roles": []string{"reviewers"}},
			{"user": map[string]any{"id": "u2"}, "roles": []string{}},
			{"user": map[string]any{"id": "u3"}, "roles": []string{"reviewers"}},
			{"user": map[string]any{"id": "u4"}, "roles": []string{}},
			{"user": map[string]any{"id": "u5"}, "roles": []string{"admins"}},
			{"user": map[string]any{"id": "bot", "bot": true}, "roles": []string{"reviewers"}},
		})
	})
	client := newTestClient(t, mux)

	viewers, err := client.ChannelViewers(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ChannelViewers failed: %v", err)
	}
	if want := []string{"u1", "u4", "u5"}; !slices.Equal(viewers, want) {
		t.Fatalf("viewers = %v, want %v", viewers, want)
	}
}

func TestResolveUserByName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /guilds/guild-1/members/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "alice" {
			t.Errorf("unexpected query %q", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"user": map[string]any{"id": "9", "username": "alicebot", "bot": true}},
			{"user": map[string]any{"id": "10", "username": "alice_real", "global_name": "Alice"}},
		})
	})
	client := newTestClient(t, mux)

	user, ok, err := client.ResolveUser(context.Background(), "@alice#0")
	if err != nil {
		t.Fatalf("ResolveUser failed: %v", err)
	}
	if !ok || user.ID != "10" || user.DisplayName() != "Alice" {
		t.Fatalf("unexpected user %+v ok=%v", user, ok)
	}

	none, ok, err := client.ResolveUser(context.Background(), "  ")
	if err != nil || ok || none.ID != "" {
		t.Fatalf("expected blank query to resolve nothing, got %+v %v %v", none, ok, err)
	}
}

func TestGuildOperationsRequireGuild(t *testing.T) {
	client := chat.NewHTTPClient("http://127.0.0.1:0", "secret", "")
	err := client.AddRole(context.Background(), "u1", "r1")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
