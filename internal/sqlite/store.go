// Package sqlite implements the post store on SQLite with an FTS5 full-text
// index over text, author and handle. The index is kept in exact lockstep
// with the posts table: bulk loads rebuild it and handle updates refresh the
// affected entries, always inside the same transaction as the table change.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kjdrag/skyindex/internal/domain"
	"github.com/kjdrag/skyindex/internal/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store implements domain.PostStore using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path, applies pending schema
// migrations, and returns a new Store. The caller should call Close when the
// store is no longer needed.
func NewStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceAll clears the posts table and the search index, inserts the batch,
// and rebuilds the index, all in one transaction. Duplicate URIs within the
// batch are ignored. On error the previous contents are left intact.
func (s *Store) ReplaceAll(ctx context.Context, records []domain.PostRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return 0, fmt.Errorf("clear posts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO posts_fts(posts_fts) VALUES('delete-all')`); err != nil {
		return 0, fmt.Errorf("clear search index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO posts
			(uri, text, author, handle, lang, created_at, reply_to, root_uri, rev, operation, cid, embed, facets)
		VALUES
			(?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''))`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		_, err := stmt.ExecContext(ctx,
			r.URI,
			r.Text,
			r.Author,
			r.Handle,
			r.Lang,
			r.CreatedAt,
			r.ReplyTo,
			r.RootURI,
			r.Rev,
			r.Operation,
			r.CID,
			string(r.Embed),
			string(r.Facets),
		)
		if err != nil {
			return 0, fmt.Errorf("insert post %s: %w", r.URI, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO posts_fts(posts_fts) VALUES('rebuild')`); err != nil {
		return 0, fmt.Errorf("rebuild search index: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return count, nil
}

// ThreadsByTopic matches topic against the full-text index, ranks
// conversation roots by descending count of matching posts, and returns up
// to maxThreads threads. Each thread carries every post of its root ordered
// by created_at ascending, so a single match still yields the whole
// conversation.
func (s *Store) ThreadsByTopic(ctx context.Context, topic string, maxThreads int, langs []string) ([]domain.Thread, error) {
	langClause := ""
	args := []any{matchQuery(topic)}
	if len(langs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(langs)), ",")
		langClause = fmt.Sprintf(" AND lower(p.lang) IN (%s)", placeholders)
		for _, l := range langs {
			args = append(args, strings.ToLower(l))
		}
	}
	args = append(args, maxThreads)

	query := fmt.Sprintf(`
		WITH matches AS (
			SELECT p.root_uri AS root_uri, COUNT(*) AS matched
			FROM posts_fts f
			JOIN posts p ON p.id = f.rowid
			WHERE posts_fts MATCH ?%s
			GROUP BY p.root_uri
			ORDER BY matched DESC, p.root_uri
			LIMIT ?
		)
		SELECT p.uri, p.text, p.author, p.handle, p.lang, p.created_at,
		       p.reply_to, p.root_uri, p.rev, p.operation, p.cid, p.embed, p.facets
		FROM posts p
		JOIN matches m ON m.root_uri = p.root_uri
		ORDER BY m.matched DESC, m.root_uri, p.created_at`, langClause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var threads []domain.Thread
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}

		if n := len(threads); n == 0 || threads[n-1].RootURI != p.RootURI {
			threads = append(threads, domain.Thread{RootURI: p.RootURI})
		}
		last := &threads[len(threads)-1]
		last.Posts = append(last.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return threads, nil
}

// UpdateHandle sets the handle on every post by the given author and
// refreshes the affected search-index entries so handle searches see the
// change. Returns the number of rows updated.
func (s *Store) UpdateHandle(ctx context.Context, author, handle string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// External-content FTS needs the old row values to remove its entries,
	// so deindex before updating.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO posts_fts(posts_fts, rowid, text, author, handle)
		SELECT 'delete', id, text, author, handle
		FROM posts WHERE author = ?`, author); err != nil {
		return 0, fmt.Errorf("deindex posts: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE posts SET handle = ? WHERE author = ?`, handle, author)
	if err != nil {
		return 0, fmt.Errorf("update handle: %w", err)
	}
	updated, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO posts_fts(rowid, text, author, handle)
		SELECT id, text, author, handle
		FROM posts WHERE author = ?`, author); err != nil {
		return 0, fmt.Errorf("reindex posts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return updated, nil
}

// matchQuery wraps the user's topic in an FTS5 phrase so punctuation in the
// topic cannot be parsed as query syntax. An unmatchable topic then yields
// zero rows instead of a syntax error.
func matchQuery(topic string) string {
	return `"` + strings.ReplaceAll(topic, `"`, `""`) + `"`
}

func scanPost(rows *sql.Rows) (domain.PostRecord, error) {
	var p domain.PostRecord
	var handle, lang, replyTo, rev, operation, cid, embed, facets sql.NullString

	err := rows.Scan(
		&p.URI,
		&p.Text,
		&p.Author,
		&handle,
		&lang,
		&p.CreatedAt,
		&replyTo,
		&p.RootURI,
		&rev,
		&operation,
		&cid,
		&embed,
		&facets,
	)
	if err != nil {
		return domain.PostRecord{}, err
	}

	p.Handle = handle.String
	p.Lang = lang.String
	p.ReplyTo = replyTo.String
	p.Rev = rev.String
	p.Operation = operation.String
	p.CID = cid.String
	if embed.Valid {
		p.Embed = json.RawMessage(embed.String)
	}
	if facets.Valid {
		p.Facets = json.RawMessage(facets.String)
	}
	return p, nil
}
