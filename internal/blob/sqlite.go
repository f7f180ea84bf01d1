package blob

import (
	"context"
	"database/sql"
	"time"

	"github.com/erazemk/menjalnica/internal/store"
)

// DownloadPath is the route prefix under which SQLiteStore blobs are served.
const DownloadPath = "/api/blobs/"

// SQLiteStore keeps blobs in the application database and serves them
// through the API.
type SQLiteStore struct {
	DB *sql.DB
	// PublicURL is the externally visible base URL of the API server.
	PublicURL string
}

// NewSQLiteStore returns a blob store backed by the blobs table.
func NewSQLiteStore(db *sql.DB, publicURL string) *SQLiteStore {
	return &SQLiteStore{DB: db, PublicURL: publicURL}
}

func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := store.PutBlob(ctx, s.DB, key, data, contentType, time.Now().UnixMilli()); err != nil {
		return "", err
	}
	return joinURL(s.PublicURL, DownloadPath+key), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return store.DeleteBlob(ctx, s.DB, key)
}

// Get returns a blob's data and content type, or nil data if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	return store.GetBlob(ctx, s.DB, key)
}
