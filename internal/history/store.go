package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blacktop/xpublish/internal/publish"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	idempotency_key TEXT NOT NULL,
	platform        TEXT NOT NULL,
	message_id      TEXT NOT NULL DEFAULT '',
	message_ids     TEXT NOT NULL DEFAULT '[]',
	url             TEXT NOT NULL DEFAULT '',
	native          TEXT NOT NULL DEFAULT 'null',
	created_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (idempotency_key, platform)
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
`

// Store is a SQLite backed publish.Ledger. Records survive restarts, so a
// resubmitted payload with the same key skips platforms it already reached.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Entry is one recorded post.
type Entry struct {
	Key       string
	Result    publish.Result
	CreatedAt time.Time
}

// Open opens (and creates if needed) the ledger database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// SQLite doesn't handle concurrent writes well
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the recorded result of key on platform.
func (s *Store) Lookup(ctx context.Context, key string, platform publish.Platform) (publish.Result, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT message_id, message_ids, url, native
		FROM posts WHERE idempotency_key = ? AND platform = ?`, key, string(platform))

	res := publish.Result{Platform: platform}
	var ids, native string
	if err := row.Scan(&res.MessageID, &ids, &res.URL, &native); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return publish.Result{}, false, nil
		}
		return publish.Result{}, false, fmt.Errorf("lookup %s/%s: %w", key, platform, err)
	}
	if err := decodeColumns(&res, ids, native); err != nil {
		return publish.Result{}, false, fmt.Errorf("lookup %s/%s: %w", key, platform, err)
	}
	return res, true, nil
}

// Record stores a successful result under key. An existing record for the
// same key and platform is replaced.
func (s *Store) Record(ctx context.Context, key string, res publish.Result) error {
	ids, err := json.Marshal(res.MessageIDs)
	if err != nil {
		return fmt.Errorf("encode message ids: %w", err)
	}
	if res.MessageIDs == nil {
		ids = []byte("[]")
	}
	native, err := json.Marshal(res.Native)
	if err != nil {
		return fmt.Errorf("encode native result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO posts (idempotency_key, platform, message_id, message_ids, url, native, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, string(res.Platform), res.MessageID, string(ids), res.URL, string(native), s.now().UTC())
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", key, res.Platform, err)
	}
	return nil
}

// Recent lists the newest records first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT idempotency_key, platform, message_id, message_ids, url, native, created_at
		FROM posts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e           Entry
			platform    string
			ids, native string
		)
		if err := rows.Scan(&e.Key, &platform, &e.Result.MessageID, &ids, &e.Result.URL, &native, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Result.Platform = publish.Platform(platform)
		if err := decodeColumns(&e.Result, ids, native); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func decodeColumns(res *publish.Result, ids, native string) error {
	if err := json.Unmarshal([]byte(ids), &res.MessageIDs); err != nil {
		return fmt.Errorf("decode message ids: %w", err)
	}
	if len(res.MessageIDs) == 0 {
		res.MessageIDs = nil
	}
	if native != "" && native != "null" {
		var v any
		if err := json.Unmarshal([]byte(native), &v); err != nil {
			return fmt.Errorf("decode native result: %w", err)
		}
		res.Native = v
	}
	return nil
}

var _ publish.Ledger = (*Store)(nil)
