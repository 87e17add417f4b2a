package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	_ "github.com/mattn/go-sqlite3"

	"trashdrop/common"
	"trashdrop/db"
	"trashdrop/request"
)

// Entry is a cached request with its sync bookkeeping. BaseStatus is the
// status last confirmed by the remote store, empty if it never got there.
type Entry struct {
	Request    *request.Request
	SyncStatus request.SyncStatus
	BaseStatus request.Status
	UpdatedAt  time.Time
}

// Cache is the on-device copy of requests, kept in SQLite.
type Cache struct {
	conn *sql.DB
}

// Open opens (creating if needed) the SQLite file at path.
func Open(path string) (*Cache, error) {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// Serializes writers so compare-and-put stays atomic.
	conn.SetMaxOpenConns(1)

	c := &Cache{conn: conn}
	if err := c.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate cache: %w", err)
	}
	return c, nil
}

// New wraps an already migrated connection.
func New(conn *sql.DB) *Cache {
	return &Cache{conn: conn}
}

func (c *Cache) Close() error {
	return c.conn.Close()
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		collector_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'synced',
		base_status TEXT NOT NULL DEFAULT '',
		doc TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_sync_status ON requests(sync_status);
	`

	_, err := c.conn.Exec(schema)
	return err
}

// Put writes r unconditionally.
func (c *Cache) Put(ctx context.Context, r *request.Request, sync request.SyncStatus, base request.Status) error {
	doc, err := encode(r, sync)
	if err != nil {
		return err
	}
	result, err := c.conn.ExecContext(ctx,
		`INSERT INTO requests (id, user_id, collector_id, status, sync_status, base_status, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, collector_id = excluded.collector_id,
		 status = excluded.status, sync_status = excluded.sync_status, base_status = excluded.base_status,
		 doc = excluded.doc, updated_at = excluded.updated_at`,
		r.ID, r.UserID, r.CollectorID, string(r.Status), string(sync), string(base), doc, r.CreatedAt.UTC(), time.Now().UTC())
	common.LogResult("cachePut", result, err, true)
	return err
}

// CompareAndPut writes r only if the cached status still equals expected.
// An empty expected inserts a new entry with no base status. The base
// status of an existing entry is left alone. Returns request.ErrConflict
// when another writer got there first, request.ErrNotFound when there is
// nothing to compare against.
func (c *Cache) CompareAndPut(ctx context.Context, r *request.Request, expected request.Status, sync request.SyncStatus) error {
	doc, err := encode(r, sync)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var result sql.Result
	if expected == "" {
		result, err = c.conn.ExecContext(ctx,
			`INSERT INTO requests (id, user_id, collector_id, status, sync_status, base_status, doc, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, '', ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			r.ID, r.UserID, r.CollectorID, string(r.Status), string(sync), doc, r.CreatedAt.UTC(), now)
	} else {
		result, err = c.conn.ExecContext(ctx,
			`UPDATE requests SET user_id = ?, collector_id = ?, status = ?, sync_status = ?, doc = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			r.UserID, r.CollectorID, string(r.Status), string(sync), doc, now, r.ID, string(expected))
	}
	if err != nil {
		log.Errorf("Failed to write request %s to cache: %v", r.ID, err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}
	if expected == "" {
		return request.ErrConflict
	}
	if _, err := c.Get(ctx, r.ID); err != nil {
		return err
	}
	return request.ErrConflict
}

func (c *Cache) Get(ctx context.Context, id string) (*Entry, error) {
	row := c.conn.QueryRowContext(ctx,
		"SELECT doc, sync_status, base_status, updated_at FROM requests WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, request.ErrNotFound
	}
	return e, err
}

// List returns cached requests matching f, newest first.
func (c *Cache) List(ctx context.Context, f db.Filter) ([]*request.Request, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.CollectorID != "" {
		conds = append(conds, "collector_id = ?")
		args = append(args, f.CollectorID)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	query := "SELECT doc, sync_status, base_status, updated_at FROM requests"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	entries, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	reqs := make([]*request.Request, 0, len(entries))
	for _, e := range entries {
		reqs = append(reqs, e.Request)
	}
	return reqs, nil
}

// ListBySync returns entries in the given sync state, oldest change first.
func (c *Cache) ListBySync(ctx context.Context, sync request.SyncStatus) ([]*Entry, error) {
	return c.query(ctx,
		"SELECT doc, sync_status, base_status, updated_at FROM requests WHERE sync_status = ? ORDER BY updated_at ASC",
		string(sync))
}

// MarkSync records the outcome of a push to the remote store.
func (c *Cache) MarkSync(ctx context.Context, id string, sync request.SyncStatus, base request.Status) error {
	result, err := c.conn.ExecContext(ctx,
		"UPDATE requests SET sync_status = ?, base_status = ? WHERE id = ?",
		string(sync), string(base), id)
	common.LogResult("cacheMarkSync", result, err, true)
	return err
}

func (c *Cache) query(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		log.Errorf("Error querying cache: %v", err)
		return nil, err
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			log.Warnf("Skipping unreadable cache row: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		doc        string
		sync, base string
		updatedAt  sql.NullTime
	)
	if err := s.Scan(&doc, &sync, &base, &updatedAt); err != nil {
		return nil, err
	}
	r := &request.Request{}
	if err := json.Unmarshal([]byte(doc), r); err != nil {
		return nil, fmt.Errorf("failed to decode cached request: %w", err)
	}
	r.SyncStatus = request.SyncStatus(sync)
	return &Entry{
		Request:    r,
		SyncStatus: request.SyncStatus(sync),
		BaseStatus: request.Status(base),
		UpdatedAt:  updatedAt.Time,
	}, nil
}

func encode(r *request.Request, sync request.SyncStatus) (string, error) {
	c := r.Clone()
	c.SyncStatus = sync
	doc, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode request %s: %w", r.ID, err)
	}
	return string(doc), nil
}
