package domain

import (
	"encoding/json"
	"fmt"
)

// PostRecord is one normalized post captured from the firehose. Records are
// immutable once stored except for Handle, which is back-filled lazily by a
// profile lookup.
type PostRecord struct {
	// URI is the AT-URI of the post (at://<did>/app.bsky.feed.post/<rkey>).
	// It is the primary key of the store.
	URI string `json:"uri"`

	// Text is the post body. May be empty.
	Text string `json:"text"`

	// Author is the DID of the post's author.
	Author string `json:"author"`

	// Handle is the author's human-readable handle. Empty until resolved.
	Handle string `json:"handle,omitempty"`

	// Lang is the post's primary language tag, lowercased. May be empty.
	Lang string `json:"lang,omitempty"`

	// CreatedAt is the ISO-8601 creation timestamp declared by the author's
	// client, or the capture time when the record omitted one.
	CreatedAt string `json:"created_at"`

	// ReplyTo is the AT-URI of the immediate parent post. Empty for root
	// candidates.
	ReplyTo string `json:"reply_to,omitempty"`

	// RootURI is the resolved conversation root. Set during ingestion; a
	// post with no resolvable parent is its own root.
	RootURI string `json:"root_uri,omitempty"`

	// Rev, Operation and CID are upstream commit metadata carried through
	// for dedup and auditing.
	Rev       string `json:"rev,omitempty"`
	Operation string `json:"operation,omitempty"`
	CID       string `json:"cid,omitempty"`

	// Embed and Facets are opaque record payloads carried through verbatim.
	Embed  json.RawMessage `json:"embed,omitempty"`
	Facets json.RawMessage `json:"facets,omitempty"`
}

// DisplayName returns the author's handle when resolved, falling back to the
// bare DID.
func (p *PostRecord) DisplayName() string {
	if p.Handle != "" {
		return p.Handle
	}
	return p.Author
}

// Thread is a virtual grouping of all posts sharing one conversation root,
// ordered by creation time ascending. Threads are derived at query time;
// they are never stored.
type Thread struct {
	// RootURI identifies the conversation.
	RootURI string

	// Posts holds every post belonging to the root, ascending by CreatedAt.
	Posts []PostRecord
}

// Transcript renders the thread as plain lines of
// "timestamp<TAB>author<TAB>text", one per post, in conversation order. This
// is the surface consumed by the agent/tool layer.
func (t *Thread) Transcript() []string {
	lines := make([]string, len(t.Posts))
	for i, p := range t.Posts {
		lines[i] = fmt.Sprintf("%s\t%s\t%s", p.CreatedAt, p.DisplayName(), p.Text)
	}
	return lines
}

// Profile is the subset of an actor profile the indexer cares about.
type Profile struct {
	// DID is the actor's decentralized identifier.
	DID string

	// Handle is the actor's human-readable handle.
	Handle string

	// DisplayName is the free-form profile name. Informational only.
	DisplayName string
}
