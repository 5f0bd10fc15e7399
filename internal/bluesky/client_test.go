package bluesky

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/app.bsky.actor.getProfile" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("actor"); got != "did:plc:alice" {
			t.Errorf("actor = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"did":"did:plc:alice","handle":"alice.bsky.social","displayName":"Alice"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	profile, err := client.GetProfile(context.Background(), "did:plc:alice")
	if err != nil {
		t.Fatalf("GetProfile() failed: %v", err)
	}
	if profile.Handle != "alice.bsky.social" {
		t.Errorf("Handle = %q", profile.Handle)
	}
	if profile.DID != "did:plc:alice" {
		t.Errorf("DID = %q", profile.DID)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"InvalidRequest","message":"Profile not found"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.GetProfile(context.Background(), "did:plc:ghost"); err == nil {
		t.Error("GetProfile() expected error for non-success status")
	}
}

func TestGetProfile_MissingHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"did":"did:plc:alice"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.GetProfile(context.Background(), "did:plc:alice"); err == nil {
		t.Error("GetProfile() expected error for profile without handle")
	}
}

func TestGetProfile_UnreachableService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // shut down before use

	client := NewClient(server.URL)
	if _, err := client.GetProfile(context.Background(), "did:plc:alice"); err == nil {
		t.Error("GetProfile() expected error for unreachable service")
	}
}

func TestNewClient_DefaultAppView(t *testing.T) {
	client := NewClient("")
	if client.appView != defaultAppView {
		t.Errorf("appView = %q, want %q", client.appView, defaultAppView)
	}
}
