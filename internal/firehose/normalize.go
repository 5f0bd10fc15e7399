package firehose

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kjdrag/skyindex/internal/domain"
)

// CapturePolicy controls which commit events the normalizer accepts.
type CapturePolicy struct {
	// langs restricts captures to posts declaring at least one of these
	// language tags. nil means no language filter.
	langs map[string]struct{}

	// includeReplies controls whether reply posts are captured. When false
	// only root-level posts make it into the log, which starves thread
	// reconstruction of everything but single-post threads.
	includeReplies bool
}

// NewCapturePolicy builds a policy from a list of language codes (empty
// means accept any language) and a reply-inclusion switch.
func NewCapturePolicy(langs []string, includeReplies bool) CapturePolicy {
	p := CapturePolicy{includeReplies: includeReplies}
	if len(langs) > 0 {
		p.langs = make(map[string]struct{}, len(langs))
		for _, l := range langs {
			if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
				p.langs[l] = struct{}{}
			}
		}
		if len(p.langs) == 0 {
			p.langs = nil
		}
	}
	return p
}

// Normalize turns one raw Jetstream message into a post record, or nil when
// the message is rejected by the policy or is not a post commit at all. The
// error is non-nil only for undecodable input; rejections are silent.
func Normalize(data []byte, policy CapturePolicy, now func() time.Time) (*domain.PostRecord, error) {
	event, err := parseEvent(data)
	if err != nil {
		return nil, err
	}

	commit := event.Commit
	if commit == nil || commit.Collection != postCollection {
		return nil, nil
	}
	if commit.Operation != "create" && commit.Operation != "update" {
		return nil, nil
	}
	record := commit.Record
	if record == nil || record.Text == nil {
		return nil, nil
	}

	if policy.langs != nil && !declaresLang(record.Langs, policy.langs) {
		return nil, nil
	}

	var replyTo string
	if record.Reply != nil && record.Reply.Parent.URI != "" {
		if !policy.includeReplies {
			return nil, nil
		}
		replyTo = record.Reply.Parent.URI
	}

	createdAt := record.CreatedAt
	if createdAt == "" {
		createdAt = now().UTC().Format(time.RFC3339Nano)
	}

	var lang string
	if len(record.Langs) > 0 {
		lang = strings.ToLower(record.Langs[0])
	}

	return &domain.PostRecord{
		URI:       fmt.Sprintf("at://%s/%s/%s", event.DID, postCollection, commit.RKey),
		Text:      *record.Text,
		Author:    event.DID,
		Lang:      lang,
		CreatedAt: createdAt,
		ReplyTo:   replyTo,
		Rev:       commit.Rev,
		Operation: commit.Operation,
		CID:       commit.CID,
		Embed:     record.Embed,
		Facets:    record.Facets,
	}, nil
}

func declaresLang(langs []string, wanted map[string]struct{}) bool {
	for _, l := range langs {
		if _, ok := wanted[strings.ToLower(l)]; ok {
			return true
		}
	}
	return false
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var raw struct {
		DID    string          `json:"did"`
		TimeUS int64           `json:"time_us"`
		Kind   string          `json:"kind"`
		Commit json.RawMessage `json:"commit,omitempty"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &jetstreamEvent{
		DID:    raw.DID,
		TimeUS: raw.TimeUS,
		Kind:   raw.Kind,
	}

	if raw.Kind == "commit" && len(raw.Commit) > 0 {
		var rc struct {
			Rev        string          `json:"rev"`
			Operation  string          `json:"operation"`
			Collection string          `json:"collection"`
			RKey       string          `json:"rkey"`
			Record     json.RawMessage `json:"record,omitempty"`
			CID        string          `json:"cid"`
		}
		if err := json.Unmarshal(raw.Commit, &rc); err != nil {
			return nil, fmt.Errorf("unmarshal commit: %w", err)
		}

		commit := &jetstreamCommit{
			Rev:        rc.Rev,
			Operation:  rc.Operation,
			Collection: rc.Collection,
			RKey:       rc.RKey,
			CID:        rc.CID,
		}

		// Only post records have a known shape; other collections stay raw
		// and are rejected later by the collection check.
		if len(rc.Record) > 0 && rc.Collection == postCollection {
			var record postRecord
			if err := json.Unmarshal(rc.Record, &record); err != nil {
				return nil, fmt.Errorf("unmarshal post record: %w", err)
			}
			commit.Record = &record
		}

		event.Commit = commit
	}

	return event, nil
}
