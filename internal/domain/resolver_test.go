package domain

import (
	"strconv"
	"testing"
)

func post(uri, replyTo string) PostRecord {
	return PostRecord{URI: uri, ReplyTo: replyTo}
}

func TestResolveRoots_RootPostIsItsOwnRoot(t *testing.T) {
	roots := ResolveRoots([]PostRecord{post("at://a", "")})

	if got := roots["at://a"]; got != "at://a" {
		t.Errorf("root = %q, want %q", got, "at://a")
	}
}

func TestResolveRoots_Chain(t *testing.T) {
	records := []PostRecord{
		post("at://a", ""),
		post("at://b", "at://a"),
		post("at://c", "at://b"),
		post("at://d", "at://c"),
	}

	roots := ResolveRoots(records)

	for _, r := range records {
		if got := roots[r.URI]; got != "at://a" {
			t.Errorf("root of %s = %q, want %q", r.URI, got, "at://a")
		}
	}
}

func TestResolveRoots_DeepChain(t *testing.T) {
	const depth = 10000

	records := make([]PostRecord, depth)
	records[0] = post(uri(0), "")
	for i := 1; i < depth; i++ {
		records[i] = post(uri(i), uri(i-1))
	}

	roots := ResolveRoots(records)

	for i := 0; i < depth; i++ {
		if got := roots[uri(i)]; got != uri(0) {
			t.Fatalf("root of %s = %q, want %q", uri(i), got, uri(0))
		}
	}
}

func TestResolveRoots_DanglingParentIsLocalRoot(t *testing.T) {
	records := []PostRecord{
		post("at://reply", "at://missing"),
		post("at://child", "at://reply"),
	}

	roots := ResolveRoots(records)

	if got := roots["at://reply"]; got != "at://reply" {
		t.Errorf("root of dangling reply = %q, want itself", got)
	}
	if got := roots["at://child"]; got != "at://reply" {
		t.Errorf("root of child = %q, want %q", got, "at://reply")
	}
}

func TestResolveRoots_Cycle(t *testing.T) {
	records := []PostRecord{
		post("at://a", "at://c"),
		post("at://b", "at://a"),
		post("at://c", "at://b"),
	}

	roots := ResolveRoots(records)

	// All members of the cycle must agree on one root.
	want := roots["at://a"]
	if want == "" {
		t.Fatal("cycle member resolved to empty root")
	}
	for _, u := range []string{"at://a", "at://b", "at://c"} {
		if got := roots[u]; got != want {
			t.Errorf("root of %s = %q, want %q", u, got, want)
		}
	}
}

func TestResolveRoots_SelfReference(t *testing.T) {
	roots := ResolveRoots([]PostRecord{post("at://a", "at://a")})

	if got := roots["at://a"]; got != "at://a" {
		t.Errorf("root of self-reply = %q, want itself", got)
	}
}

func TestResolveRoots_TailIntoCycle(t *testing.T) {
	records := []PostRecord{
		post("at://x", "at://a"),
		post("at://a", "at://b"),
		post("at://b", "at://a"),
	}

	roots := ResolveRoots(records)

	// The tail must resolve to the same root as the cycle it leads into.
	if roots["at://x"] != roots["at://a"] || roots["at://a"] != roots["at://b"] {
		t.Errorf("tail and cycle disagree: %v", roots)
	}
}

func TestResolveRoots_DuplicateURIFirstWins(t *testing.T) {
	// The store keeps the first arrival of a duplicate URI, so resolution
	// must follow the first occurrence's parent, not the duplicate's.
	records := []PostRecord{
		post("at://a", ""),
		post("at://c", ""),
		post("at://b", "at://a"),
		post("at://b", "at://c"),
	}

	roots := ResolveRoots(records)

	if got := roots["at://b"]; got != "at://a" {
		t.Errorf("root of duplicated at://b = %q, want at://a (first arrival's parent)", got)
	}
}

func TestResolveRoots_EmptyBatch(t *testing.T) {
	if roots := ResolveRoots(nil); len(roots) != 0 {
		t.Errorf("expected empty map, got %v", roots)
	}
}

func uri(i int) string {
	return "at://did:plc:chain/app.bsky.feed.post/" + strconv.Itoa(i)
}
