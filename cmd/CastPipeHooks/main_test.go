package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/CastPipe/internal/farcaster"
)

func newHooksClient(t *testing.T, srv *httptest.Server) *farcaster.Client {
	t.Helper()
	client, err := farcaster.NewClient(
		farcaster.WithAPIKey("test-key"),
		farcaster.WithBaseURL(srv.URL),
		farcaster.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestDeleteCommandRemovesEachWebhook(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v2/farcaster/webhook" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			WebhookID string `json:"webhook_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		deleted = append(deleted, req.WebhookID)
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newHooksClient(t, srv)
	if err := run(context.Background(), client, "delete", []string{"wh-1", "wh-2", "wh-3"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(deleted) != 3 || deleted[0] != "wh-1" || deleted[2] != "wh-3" {
		t.Errorf("expected all webhooks deleted in order, got %v", deleted)
	}
}

func TestDeleteCommandRequiresIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made without ids")
	}))
	defer srv.Close()

	client := newHooksClient(t, srv)
	if err := run(context.Background(), client, "delete", nil); err == nil {
		t.Error("expected error for missing webhook ids")
	}
}

func TestDeleteCommandContinuesPastFailures(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			WebhookID string `json:"webhook_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.WebhookID == "wh-bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		deleted = append(deleted, req.WebhookID)
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newHooksClient(t, srv)
	err := run(context.Background(), client, "delete", []string{"wh-bad", "wh-ok"})
	if err == nil || !strings.Contains(err.Error(), "wh-bad") {
		t.Fatalf("expected failure naming wh-bad, got %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "wh-ok" {
		t.Errorf("remaining ids should still be deleted, got %v", deleted)
	}
}
