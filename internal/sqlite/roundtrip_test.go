package sqlite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kjdrag/skyindex/internal/domain"
)

type stubDirectory struct {
	handle string
	err    error
}

func (s *stubDirectory) GetProfile(context.Context, string) (domain.Profile, error) {
	if s.err != nil {
		return domain.Profile{}, s.err
	}
	return domain.Profile{Handle: s.handle}, nil
}

func TestIngestAndQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := domain.NewIndexService(store, &stubDirectory{handle: "xavier.bsky.social"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	log := `{"uri":"at://a","text":"cats are great","author":"did:plc:x","lang":"en","created_at":"2026-03-14T09:00:00Z"}
{"uri":"at://b","text":"I agree","author":"did:plc:y","lang":"en","created_at":"2026-03-14T09:01:00Z","reply_to":"at://a"}
{"uri":"at://c","text":"dogs rule","author":"did:plc:z","lang":"en","created_at":"2026-03-14T09:02:00Z"}
{"uri":"at://d","text":"so true","author":"did:plc:z","lang":"en","created_at":"2026-03-14T09:03:00Z","reply_to":"at://c"}
{"uri":"at://e","text":"absolutely","author":"did:plc:x","lang":"en","created_at":"2026-03-14T09:04:00Z","reply_to":"at://b"}
{"uri":"at://f","text":"dangling reply","author":"did:plc:w","lang":"en","created_at":"2026-03-14T09:05:00Z","reply_to":"at://gone"}
{"uri":"at://a","text":"cats are great","author":"did:plc:x","lang":"en","created_at"`

	path := filepath.Join(t.TempDir(), "capture.jsonl")
	if err := os.WriteFile(path, []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}

	count, err := svc.IngestLog(ctx, path)
	if err != nil {
		t.Fatalf("IngestLog() failed: %v", err)
	}
	// Six well-formed records; the truncated final line is skipped.
	if count != 6 {
		t.Fatalf("IngestLog() = %d, want 6", count)
	}

	threads, err := svc.ThreadsByTopic(ctx, "cats", 10, nil)
	if err != nil {
		t.Fatalf("ThreadsByTopic() failed: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("got %d threads, want 1", len(threads))
	}
	wantOrder := []string{"at://a", "at://b", "at://e"}
	if len(threads[0].Posts) != len(wantOrder) {
		t.Fatalf("thread has %d posts, want %d", len(threads[0].Posts), len(wantOrder))
	}
	for i, want := range wantOrder {
		if threads[0].Posts[i].URI != want {
			t.Errorf("post[%d] = %q, want %q", i, threads[0].Posts[i].URI, want)
		}
	}

	// The dangling reply is its own root and queryable.
	threads, err = svc.ThreadsByTopic(ctx, "dangling", 10, nil)
	if err != nil {
		t.Fatalf("ThreadsByTopic() failed: %v", err)
	}
	if len(threads) != 1 || threads[0].RootURI != "at://f" {
		t.Errorf("dangling reply thread = %v", threads)
	}

	// Ingesting the same log twice changes nothing.
	again, err := svc.IngestLog(ctx, path)
	if err != nil {
		t.Fatalf("second IngestLog() failed: %v", err)
	}
	if again != count {
		t.Errorf("re-ingest = %d, want %d", again, count)
	}

	// Handle resolution back-fills the index.
	handle, ok, err := svc.ResolveHandle(ctx, "did:plc:x")
	if err != nil {
		t.Fatalf("ResolveHandle() failed: %v", err)
	}
	if !ok || handle != "xavier.bsky.social" {
		t.Fatalf("ResolveHandle() = (%q, %v)", handle, ok)
	}
	threads, err = svc.ThreadsByTopic(ctx, "xavier", 10, nil)
	if err != nil {
		t.Fatalf("ThreadsByTopic() failed: %v", err)
	}
	if len(threads) == 0 {
		t.Error("handle search found nothing after resolution")
	}
}

func TestResolveHandle_FailedLookupLeavesHandlesIntact(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	records := []domain.PostRecord{
		{URI: "at://a", Text: "hello", Author: "did:plc:x", Handle: "old.bsky.social", CreatedAt: "t1", RootURI: "at://a"},
	}
	if _, err := store.ReplaceAll(ctx, records); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	svc := domain.NewIndexService(store, &stubDirectory{err: fmt.Errorf("unreachable")}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, ok, err := svc.ResolveHandle(ctx, "did:plc:x")
	if err != nil {
		t.Fatalf("ResolveHandle() error: %v", err)
	}
	if ok {
		t.Fatal("ResolveHandle() reported success for failed lookup")
	}

	threads, err := store.ThreadsByTopic(ctx, "hello", 10, nil)
	if err != nil {
		t.Fatalf("ThreadsByTopic() failed: %v", err)
	}
	if len(threads) != 1 || threads[0].Posts[0].Handle != "old.bsky.social" {
		t.Errorf("stored handle was changed: %v", threads)
	}
}
