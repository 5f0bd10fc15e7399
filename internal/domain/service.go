package domain

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// IndexService is the core domain service. It owns log ingestion, thread
// queries, and lazy handle resolution, delegating persistence to a PostStore
// and profile lookups to a ProfileDirectory.
type IndexService struct {
	store    PostStore
	profiles ProfileDirectory
	logger   *slog.Logger
}

// NewIndexService creates an IndexService.
func NewIndexService(store PostStore, profiles ProfileDirectory, logger *slog.Logger) *IndexService {
	return &IndexService{
		store:    store,
		profiles: profiles,
		logger:   logger,
	}
}

// IngestLog reads a capture log of newline-delimited post records, resolves
// conversation roots over the whole batch, and replaces the store contents
// with the result. Malformed lines (including a final line truncated by an
// interrupted capture) are skipped individually; a storage failure aborts
// the batch and leaves the previous store contents intact.
func (s *IndexService) IngestLog(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open capture log: %w", err)
	}
	defer f.Close()

	var records []PostRecord
	var skipped int

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return 0, fmt.Errorf("read capture log: %w", readErr)
		}

		if line = strings.TrimSpace(line); line != "" {
			var rec PostRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.URI == "" {
				skipped++
			} else {
				records = append(records, rec)
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	roots := ResolveRoots(records)
	for i := range records {
		records[i].RootURI = roots[records[i].URI]
	}

	stored, err := s.store.ReplaceAll(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("store records: %w", err)
	}

	s.logger.Info("ingested capture log",
		"path", path,
		"stored", stored,
		"skipped", skipped,
	)
	return stored, nil
}

// ThreadsByTopic returns up to maxThreads conversation threads in which at
// least one post matches topic, ranked by descending count of matching
// posts. An empty or whitespace-only topic is a valid request with an empty
// result. Language codes are matched case-insensitively.
func (s *IndexService) ThreadsByTopic(ctx context.Context, topic string, maxThreads int, langs []string) ([]Thread, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, nil
	}
	if maxThreads <= 0 {
		maxThreads = 10
	}

	normalized := make([]string, 0, len(langs))
	for _, l := range langs {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			normalized = append(normalized, l)
		}
	}

	threads, err := s.store.ThreadsByTopic(ctx, topic, maxThreads, normalized)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	return threads, nil
}

// ResolveHandle looks up the handle for an author DID and back-fills it into
// every stored post by that author. Lookup failures are logged and reported
// as not-found rather than raised; previously stored handles are left
// untouched. The returned error is non-nil only for storage failures.
func (s *IndexService) ResolveHandle(ctx context.Context, did string) (string, bool, error) {
	profile, err := s.profiles.GetProfile(ctx, did)
	if err != nil {
		s.logger.Warn("profile lookup failed", "did", did, "error", err)
		return "", false, nil
	}
	if profile.Handle == "" {
		s.logger.Warn("profile has no handle", "did", did)
		return "", false, nil
	}

	updated, err := s.store.UpdateHandle(ctx, did, profile.Handle)
	if err != nil {
		return "", false, fmt.Errorf("update handle: %w", err)
	}

	s.logger.Info("resolved handle", "did", did, "handle", profile.Handle, "posts_updated", updated)
	return profile.Handle, true, nil
}
