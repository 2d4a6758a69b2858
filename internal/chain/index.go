// Package chain indexes clip links in SQLite so chains can be walked without
// rereading every metadata record.
package chain

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/satindergrewal/clipchain/internal/clip"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. The index is derived
// data, so a mismatch is resolved by deleting the file and rebuilding.
const schemaVersion = 1

// ErrSchemaMismatch indicates an index written by a different schema version.
var ErrSchemaMismatch = errors.New("chain index schema version mismatch")

// Link is the indexed form of one clip's metadata.
type Link struct {
	ID              clip.ID
	Before          clip.ID
	After           clip.ID
	MarkerBeginning float64
	MarkerEnd       float64
}

// Index is the SQLite-backed link table.
type Index struct {
	db   *sql.DB
	path string
}

// Open creates or opens the index at path.
func Open(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	idx := &Index{db: db, path: path}
	if err := idx.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Path returns the database file location.
func (x *Index) Path() string { return x.path }

// Close closes the underlying database connection.
func (x *Index) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

func (x *Index) initSchema(ctx context.Context) error {
	var tableExists int
	err := x.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return x.createSchema(ctx)
	}

	var version int
	if err := x.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: %s has version %d, expected %d (delete it to rebuild)",
			ErrSchemaMismatch, x.path, version, schemaVersion)
	}
	return nil
}

func (x *Index) createSchema(ctx context.Context) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertLink = `INSERT INTO links (id, before_id, after_id, marker_beginning, marker_end, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    before_id = excluded.before_id,
    after_id = excluded.after_id,
    marker_beginning = excluded.marker_beginning,
    marker_end = excluded.marker_end,
    updated_at = excluded.updated_at`

func put(ctx context.Context, e execer, id clip.ID, m clip.Metadata) error {
	before, _ := m.Before()
	after, _ := m.After()
	_, err := e.ExecContext(ctx, upsertLink,
		string(id),
		nullableID(before),
		nullableID(after),
		m.MarkerBeginning,
		m.MarkerEnd,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("index clip %s: %w", id, err)
	}
	return nil
}

// Put records or replaces the links of one clip.
func (x *Index) Put(ctx context.Context, id clip.ID, m clip.Metadata) error {
	return put(ctx, x.db, id, m)
}

// Delete removes a clip from the index. Links that point at it are kept and
// show up as missing in walks.
func (x *Index) Delete(ctx context.Context, id clip.ID) error {
	if _, err := x.db.ExecContext(ctx, "DELETE FROM links WHERE id = ?", string(id)); err != nil {
		return fmt.Errorf("unindex clip %s: %w", id, err)
	}
	return nil
}

// Rebuild replaces the whole index with records in one transaction.
func (x *Index) Rebuild(ctx context.Context, records map[clip.ID]clip.Metadata) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM links"); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	for id, m := range records {
		if err := put(ctx, tx, id, m); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

// Get returns the indexed links of id, or clip.ErrNotFound.
func (x *Index) Get(ctx context.Context, id clip.ID) (Link, error) {
	row := x.db.QueryRowContext(ctx,
		"SELECT id, before_id, after_id, marker_beginning, marker_end FROM links WHERE id = ?",
		string(id))
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, fmt.Errorf("%w: %q", clip.ErrNotFound, id)
	}
	if err != nil {
		return Link{}, fmt.Errorf("get link %s: %w", id, err)
	}
	return link, nil
}

// Count returns the number of indexed clips.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM links").Scan(&n); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// Heads returns the clips that have no predecessor, in id order.
func (x *Index) Heads(ctx context.Context) ([]clip.ID, error) {
	return x.queryIDs(ctx, "SELECT id FROM links WHERE before_id IS NULL ORDER BY id")
}

// Dangling returns the clips whose before or after link names a clip that is
// not indexed.
func (x *Index) Dangling(ctx context.Context) ([]clip.ID, error) {
	return x.queryIDs(ctx, `SELECT l.id FROM links l
LEFT JOIN links b ON b.id = l.before_id
LEFT JOIN links a ON a.id = l.after_id
WHERE (l.before_id IS NOT NULL AND b.id IS NULL)
   OR (l.after_id IS NOT NULL AND a.id IS NULL)
ORDER BY l.id`)
}

func (x *Index) queryIDs(ctx context.Context, query string) ([]clip.ID, error) {
	rows, err := x.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var ids []clip.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link id: %w", err)
		}
		ids = append(ids, clip.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (Link, error) {
	var (
		link          Link
		id            string
		before, after sql.NullString
	)
	if err := row.Scan(&id, &before, &after, &link.MarkerBeginning, &link.MarkerEnd); err != nil {
		return Link{}, err
	}
	link.ID = clip.ID(id)
	link.Before = clip.ID(before.String)
	link.After = clip.ID(after.String)
	return link, nil
}

func nullableID(id clip.ID) any {
	if id == "" {
		return nil
	}
	return string(id)
}
