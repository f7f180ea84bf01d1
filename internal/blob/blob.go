// Package blob stores prepared images and returns the public URLs that items
// and profiles reference.
package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is a blob store addressed by slash-separated keys.
type Store interface {
	// Put stores data under key, replacing any existing blob, and returns
	// the URL at which it can be downloaded.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the blob at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ItemImageKey returns a fresh key for an item photo of the given owner.
func ItemImageKey(ownerID string, now time.Time) string {
	return fmt.Sprintf("items/%s/%d-%s.jpg", ownerID, now.UnixMilli(), uuid.NewString())
}

// ProfilePhotoKey returns the key of a user's profile photo. Uploading a new
// photo replaces the previous one.
func ProfilePhotoKey(userID string) string {
	return "profile-photos/" + userID
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
