package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

const requestsTableSQL = `
	CREATE TABLE IF NOT EXISTS collection_requests(
		id VARCHAR(64) NOT NULL,
		user_id VARCHAR(255) NOT NULL DEFAULT '',
		collector_id VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(32) NOT NULL,
		type VARCHAR(32) NOT NULL DEFAULT '',
		latitude DOUBLE,
		longitude DOUBLE,
		version INT NOT NULL DEFAULT 1,
		doc JSON NOT NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		PRIMARY KEY (id),
		INDEX status_index (status),
		INDEX collector_index (collector_id),
		INDEX created_at_index (created_at)
	)`

// EnsureSchema creates the requests table if it doesn't exist
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, requestsTableSQL); err != nil {
		return fmt.Errorf("failed to create collection_requests table: %w", err)
	}
	log.Info("Collection_requests table created/verified")
	return nil
}
