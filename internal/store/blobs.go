package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PutBlob stores or replaces a blob.
func PutBlob(ctx context.Context, db *sql.DB, key string, data []byte, contentType string, now int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO blobs (key, data, content_type, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET data = excluded.data,
		     content_type = excluded.content_type, updated_at = excluded.updated_at`,
		key, data, contentType, now,
	)
	if err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	return nil
}

// GetBlob returns a blob's data and content type, or nil data if missing.
func GetBlob(ctx context.Context, db *sql.DB, key string) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := db.QueryRowContext(ctx,
		`SELECT data, content_type FROM blobs WHERE key = ?`, key,
	).Scan(&data, &contentType)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting blob: %w", err)
	}
	return data, contentType, nil
}

// DeleteBlob removes a blob. Deleting a missing key is not an error.
func DeleteBlob(ctx context.Context, db *sql.DB, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}
