package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/menjalnica/internal/model"
)

const itemColumns = `id, user_id, title, description, image_url, category, item_condition, status, created_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertItem stores a new item. The caller assigns ID, owner and CreatedAt;
// the status always starts as available.
func InsertItem(ctx context.Context, db *sql.DB, item *model.Item) (*model.Item, error) {
	_, err := db.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.Title, item.Description, item.ImageURL,
		item.Category, item.Condition, model.ItemStatusAvailable, item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return GetItem(ctx, db, item.ID)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, db *sql.DB, id string) (*model.Item, error) {
	return getItem(ctx, db, id)
}

func getItem(ctx context.Context, q queryer, id string) (*model.Item, error) {
	item := &model.Item{}
	err := q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	).Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.ImageURL,
		&item.Category, &item.Condition, &item.Status, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// GetItems returns the items with the given IDs in the order of ids,
// repeating duplicates. Unknown IDs are skipped.
func GetItems(ctx context.Context, db *sql.DB, ids []string) ([]model.Item, error) {
	return getItems(ctx, db, ids)
}

func getItems(ctx context.Context, q queryer, ids []string) ([]model.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args := inClause(`SELECT `+itemColumns+` FROM items WHERE id IN `, ids)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting items: %w", err)
	}
	defer rows.Close()

	found, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Item, len(found))
	for _, it := range found {
		byID[it.ID] = it
	}

	items := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			items = append(items, it)
		}
	}
	return items, nil
}

// ListItemsByOwner returns all items of a user, newest first.
func ListItemsByOwner(ctx context.Context, db *sql.DB, userID string) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE user_id = ?
		 ORDER BY created_at DESC, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items by owner: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListAvailableItems returns available items not owned by excludeUserID,
// newest first.
func ListAvailableItems(ctx context.Context, db *sql.DB, excludeUserID string) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE status = ? AND user_id <> ?
		 ORDER BY created_at DESC, id`, model.ItemStatusAvailable, excludeUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing available items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	items := []model.Item{}
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.UserID, &it.Title, &it.Description, &it.ImageURL,
			&it.Category, &it.Condition, &it.Status, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// inClause appends a "(?, ?, ...)" placeholder list for ids to prefix.
func inClause(prefix string, ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return prefix + "(" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}
