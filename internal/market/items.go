package market

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/menjalnica/internal/blob"
	"github.com/erazemk/menjalnica/internal/imaging"
	"github.com/erazemk/menjalnica/internal/live"
	"github.com/erazemk/menjalnica/internal/model"
	"github.com/erazemk/menjalnica/internal/store"
)

// AllCategories disables the category filter.
const AllCategories = "All"

// Filters narrow a listing of available items.
type Filters struct {
	// Search matches title or description, case-insensitively.
	Search string
	// Category must match exactly unless empty or AllCategories.
	Category string
}

// CreateItem lists a new item for ownerID. Fields are validated before any
// I/O. The image is prepared and uploaded before the record is written; if
// the write fails the uploaded image is deleted again, so a failed create
// leaves nothing behind.
func (s *Service) CreateItem(ctx context.Context, ownerID string, fields model.ItemFields, image io.Reader) (*model.Item, error) {
	if err := model.ValidateItemFields(fields); err != nil {
		return nil, err
	}
	if image == nil {
		return nil, model.NewValidationError("image", "this field is required")
	}

	img, err := imaging.Process(image, imaging.ItemPhotoMaxDimension)
	if err != nil {
		return nil, err
	}

	now := s.now()
	key := blob.ItemImageKey(ownerID, now)
	url, err := s.Blobs.Put(ctx, key, img.Data, img.MIME)
	if err != nil {
		return nil, fmt.Errorf("uploading item image: %w", err)
	}

	item, err := store.InsertItem(ctx, s.DB, &model.Item{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Title:       fields.Title,
		Description: fields.Description,
		ImageURL:    url,
		Category:    fields.Category,
		Condition:   fields.Condition,
		CreatedAt:   now.UnixMilli(),
	})
	if err != nil {
		// The request context may already be gone; clean up regardless.
		if delErr := s.Blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			slog.Error("removing orphaned item image", "key", key, "error", delErr)
		}
		return nil, err
	}

	if s.Metrics != nil {
		s.Metrics.ItemsCreated.Inc()
	}
	slog.Info("item created", "item", item.ID, "user", ownerID)
	s.notify(live.ItemsTopic(ownerID))
	return item, nil
}

// GetItem returns an item by ID.
func (s *Service) GetItem(ctx context.Context, id string) (*model.Item, error) {
	item, err := store.GetItem(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.ErrNotFound
	}
	return item, nil
}

// ListOwnItems returns all of ownerID's items, newest first.
func (s *Service) ListOwnItems(ctx context.Context, ownerID string) ([]model.Item, error) {
	return store.ListItemsByOwner(ctx, s.DB, ownerID)
}

// WatchOwnItems streams snapshots of ownerID's items, newest first. The first
// snapshot is delivered immediately and another after every change.
func (s *Service) WatchOwnItems(ctx context.Context, ownerID string) (*live.Subscription[[]model.Item], error) {
	return live.Watch(ctx, s.Hub, live.ItemsTopic(ownerID), func(ctx context.Context) ([]model.Item, error) {
		return s.ListOwnItems(ctx, ownerID)
	})
}

// ListAvailableItems returns available items not owned by excludeOwnerID,
// newest first, narrowed by f.
func (s *Service) ListAvailableItems(ctx context.Context, excludeOwnerID string, f Filters) ([]model.Item, error) {
	items, err := store.ListAvailableItems(ctx, s.DB, excludeOwnerID)
	if err != nil {
		return nil, err
	}
	return FilterItems(items, f), nil
}

// FilterItems keeps the items matching f, preserving order.
func FilterItems(items []model.Item, f Filters) []model.Item {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	category := f.Category
	if category == AllCategories {
		category = ""
	}

	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if search != "" &&
			!strings.Contains(strings.ToLower(it.Title), search) &&
			!strings.Contains(strings.ToLower(it.Description), search) {
			continue
		}
		if category != "" && it.Category != category {
			continue
		}
		out = append(out, it)
	}
	return out
}
