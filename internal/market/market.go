// Package market implements item listings and the swap request workflow on
// top of the store, blob store and live hub.
package market

import (
	"database/sql"
	"time"

	"github.com/erazemk/menjalnica/internal/blob"
	"github.com/erazemk/menjalnica/internal/live"
	"github.com/erazemk/menjalnica/internal/metrics"
)

// Service carries the backend clients used by market operations. It is
// constructed once at startup.
type Service struct {
	DB    *sql.DB
	Blobs blob.Store
	Hub   *live.Hub
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Now defaults to time.Now when nil.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) notify(topics ...string) {
	if s.Hub != nil {
		s.Hub.Notify(topics...)
	}
}
