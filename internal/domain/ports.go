package domain

import "context"

// PostStore defines persistence operations for captured posts and the
// full-text index kept in lockstep with them.
type PostStore interface {
	// ReplaceAll clears the store and the search index, inserts the given
	// batch, and rebuilds the index, all atomically. Duplicate URIs within
	// the batch are ignored (first one wins). Returns the number of rows
	// stored.
	ReplaceAll(ctx context.Context, records []PostRecord) (int, error)

	// ThreadsByTopic finds posts matching topic in the full-text index,
	// optionally restricted to the given language codes, groups them by
	// conversation root, and returns up to maxThreads threads ranked by
	// descending count of matching posts. Each thread contains every post
	// of its root, ascending by CreatedAt.
	ThreadsByTopic(ctx context.Context, topic string, maxThreads int, langs []string) ([]Thread, error)

	// UpdateHandle sets the handle on every stored post by the given author
	// and refreshes the search index accordingly. Returns the number of
	// rows updated.
	UpdateHandle(ctx context.Context, author, handle string) (int64, error)
}

// ProfileDirectory resolves author DIDs to profiles via an external service.
type ProfileDirectory interface {
	// GetProfile fetches the profile for a DID. Network, timeout and
	// non-success responses are returned as errors; callers decide whether
	// the failure is fatal.
	GetProfile(ctx context.Context, actor string) (Profile, error)
}
