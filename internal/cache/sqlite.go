package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/timeutil"

	_ "modernc.org/sqlite"
)

// SQLite is a persistent cache. Entries live in one table keyed by
// (identity, selection_key), so enumerating or deleting the entries of an
// identity is a primary key prefix scan.
type SQLite struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock
}

// OpenSQLite opens or creates the cache database at path and migrates its
// schema to the latest version.
func OpenSQLite(path string, clock timeutil.Clock) (*SQLite, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache %s: %w", path, err)
	}
	return &SQLite{db: db, path: path, clock: clock}, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DB exposes the underlying database for migrations and admin routes.
func (c *SQLite) DB() *sql.DB { return c.db }

// Path returns the database file path.
func (c *SQLite) Path() string { return c.path }

// Lookup returns the stored tree. An undecodable payload is deleted and
// reported as a CorruptionError alongside a miss.
func (c *SQLite) Lookup(ctx context.Context, identity string, sel params.Selection) (*datatree.Tree, bool, error) {
	key := sel.Key()
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM cache_entries WHERE identity = ? AND selection_key = ?`,
		identity, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup %s: %w", identity, err)
	}

	tree, decodeErr := datatree.Decode(bytes.NewReader(payload))
	if decodeErr == nil {
		return tree, true, nil
	}
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE identity = ? AND selection_key = ?`,
		identity, key); err != nil {
		monitoring.Logf("failed to drop corrupt cache entry %s/%s: %v", identity, shortKey(key), err)
	}
	return nil, false, &CorruptionError{Identity: identity, Key: key, Err: decodeErr}
}

// Store inserts or replaces the entry for the selection.
func (c *SQLite) Store(ctx context.Context, identity string, sel params.Selection, tree *datatree.Tree) error {
	payload, err := tree.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode tree for %s: %w", identity, err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (identity, selection_key, selection, payload, created_unix_nanos, payload_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity, selection_key) DO UPDATE SET
			selection = excluded.selection,
			payload = excluded.payload,
			created_unix_nanos = excluded.created_unix_nanos,
			payload_bytes = excluded.payload_bytes`,
		identity, sel.Key(), sel.Canonical(), payload, c.clock.Now().UnixNano(), len(payload))
	if err != nil {
		return fmt.Errorf("cache store %s: %w", identity, err)
	}
	return nil
}

// Invalidate deletes every entry of identity in one transaction.
func (c *SQLite) Invalidate(ctx context.Context, identity string) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("cache invalidate %s: %w", identity, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE identity = ?`, identity)
	if err != nil {
		return 0, fmt.Errorf("cache invalidate %s: %w", identity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache invalidate %s: %w", identity, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("cache invalidate %s: %w", identity, err)
	}
	return int(n), nil
}

// Entries lists the entries of identity, oldest first.
func (c *SQLite) Entries(ctx context.Context, identity string) ([]EntryInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT selection_key, selection, created_unix_nanos, payload_bytes
		FROM cache_entries WHERE identity = ?
		ORDER BY created_unix_nanos, selection_key`, identity)
	if err != nil {
		return nil, fmt.Errorf("cache entries %s: %w", identity, err)
	}
	defer rows.Close()

	var out []EntryInfo
	for rows.Next() {
		info := EntryInfo{Identity: identity}
		var created int64
		if err := rows.Scan(&info.Key, &info.Selection, &created, &info.Bytes); err != nil {
			return nil, fmt.Errorf("cache entries %s: %w", identity, err)
		}
		info.Created = time.Unix(0, created).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Summary counts entries per identity.
func (c *SQLite) Summary(ctx context.Context) ([]IdentitySummary, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT identity, COUNT(*) FROM cache_entries GROUP BY identity ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("cache summary: %w", err)
	}
	defer rows.Close()

	var out []IdentitySummary
	for rows.Next() {
		var s IdentitySummary
		if err := rows.Scan(&s.Identity, &s.Entries); err != nil {
			return nil, fmt.Errorf("cache summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (c *SQLite) Close() error {
	return c.db.Close()
}
