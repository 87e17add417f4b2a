package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"

	"trashdrop/common"
	"trashdrop/request"
)

const mysqlDuplicateEntry = 1062

// Filter narrows ListRequests. Zero values match everything.
type Filter struct {
	Status      request.Status
	CollectorID string
	UserID      string
	Limit       int
}

// SaveRequest inserts r when expected is empty, otherwise replaces the stored
// row only if its status still equals expected. Losing either race returns
// request.ErrConflict.
func SaveRequest(ctx context.Context, db *sql.DB, r *request.Request, expected request.Status) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode request %s: %w", r.ID, err)
	}
	lat, lng := coords(r)
	now := time.Now().UTC()

	if expected == "" {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		result, err := db.ExecContext(ctx, `INSERT INTO collection_requests
			(id, user_id, collector_id, status, type, latitude, longitude, version, doc, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.UserID, r.CollectorID, string(r.Status), string(r.Type), lat, lng, r.Version, doc, createdAt.UTC(), now)
		if isDuplicate(err) {
			log.Warnf("Request %s already exists", r.ID)
			return request.ErrConflict
		}
		common.LogResult("insertRequest", result, err, true)
		return err
	}

	result, err := db.ExecContext(ctx, `UPDATE collection_requests
		SET user_id = ?, collector_id = ?, status = ?, type = ?, latitude = ?, longitude = ?, version = ?, doc = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		r.UserID, r.CollectorID, string(r.Status), string(r.Type), lat, lng, r.Version, doc, now,
		r.ID, string(expected))
	if err != nil {
		log.Errorf("Failed to update request %s: %v", r.ID, err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return request.ErrConflict
	}
	return nil
}

func GetRequest(ctx context.Context, db *sql.DB, id string) (*request.Request, error) {
	var doc []byte
	err := db.QueryRowContext(ctx, "SELECT doc FROM collection_requests WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, request.ErrNotFound
	}
	if err != nil {
		log.Errorf("Error getting request %s: %v", id, err)
		return nil, err
	}
	return decode(doc)
}

// ListRequests returns matching requests, newest first.
func ListRequests(ctx context.Context, db *sql.DB, f Filter) ([]*request.Request, error) {
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

	query := "SELECT doc FROM collection_requests"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Errorf("Error listing requests: %v", err)
		return nil, err
	}
	defer rows.Close()

	reqs := make([]*request.Request, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		r, err := decode(doc)
		if err != nil {
			log.Warnf("Skipping undecodable request row: %v", err)
			continue
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// Store adapts the functions above to request.Store.
type Store struct {
	DB *sql.DB
}

func (s *Store) Save(ctx context.Context, r *request.Request, expected request.Status) error {
	return SaveRequest(ctx, s.DB, r, expected)
}

func (s *Store) Get(ctx context.Context, id string) (*request.Request, error) {
	return GetRequest(ctx, s.DB, id)
}

func (s *Store) List(ctx context.Context, f Filter) ([]*request.Request, error) {
	return ListRequests(ctx, s.DB, f)
}

func decode(doc []byte) (*request.Request, error) {
	r := &request.Request{}
	if err := json.Unmarshal(doc, r); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return r, nil
}

func coords(r *request.Request) (sql.NullFloat64, sql.NullFloat64) {
	if r.Coordinates == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: r.Coordinates.Lat, Valid: true},
		sql.NullFloat64{Float64: r.Coordinates.Lng, Valid: true}
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
