package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/menjalnica/internal/model"
)

const swapColumns = `id, from_user_id, to_user_id, requested_item_id, status, created_at, updated_at`

// SwapTransition is the committed outcome of a swap request status change.
type SwapTransition struct {
	Request *model.SwapRequest
	// AutoRejected holds other pending requests that were rejected because
	// they involved an item locked by an accepted request.
	AutoRejected []model.SwapRequest
}

// CreateSwapRequest validates and stores a swap request in a single
// transaction. The caller sets ID, FromUserID, RequestedItemID, OfferedItemIDs
// and CreatedAt; ToUserID is taken from the requested item's owner.
func CreateSwapRequest(ctx context.Context, db *sql.DB, req *model.SwapRequest) (*model.SwapRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	requested, err := getItem(ctx, tx, req.RequestedItemID)
	if err != nil {
		return nil, err
	}
	if requested == nil {
		return nil, fmt.Errorf("requested item %s: %w", req.RequestedItemID, model.ErrNotFound)
	}

	offered, err := getItems(ctx, tx, req.OfferedItemIDs)
	if err != nil {
		return nil, err
	}
	if len(offered) != len(req.OfferedItemIDs) {
		return nil, fmt.Errorf("offered item: %w", model.ErrNotFound)
	}

	if err := model.ValidateSwapProposal(req.FromUserID, requested, offered); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO swap_requests (`+swapColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.FromUserID, requested.UserID, req.RequestedItemID,
		model.SwapStatusPending, req.CreatedAt, req.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording swap request: %w", err)
	}

	for i, id := range req.OfferedItemIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO swap_offered_items (swap_request_id, item_id, position) VALUES (?, ?, ?)`,
			req.ID, id, i,
		)
		if err != nil {
			return nil, fmt.Errorf("recording offered item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing swap request: %w", err)
	}

	return GetSwapRequest(ctx, db, req.ID)
}

// GetSwapRequest returns a swap request by ID.
func GetSwapRequest(ctx context.Context, db *sql.DB, id string) (*model.SwapRequest, error) {
	return getSwapRequest(ctx, db, id)
}

func getSwapRequest(ctx context.Context, q queryer, id string) (*model.SwapRequest, error) {
	r := &model.SwapRequest{}
	err := q.QueryRowContext(ctx,
		`SELECT `+swapColumns+` FROM swap_requests WHERE id = ?`, id,
	).Scan(&r.ID, &r.FromUserID, &r.ToUserID, &r.RequestedItemID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting swap request: %w", err)
	}

	reqs := []model.SwapRequest{*r}
	if err := loadOfferedItemIDs(ctx, q, reqs); err != nil {
		return nil, err
	}
	return &reqs[0], nil
}

// ListSwapRequestsTo returns requests for items owned by userID, newest first.
func ListSwapRequestsTo(ctx context.Context, db *sql.DB, userID string) ([]model.SwapRequest, error) {
	return listSwapRequests(ctx, db, `to_user_id = ?`, userID)
}

// ListSwapRequestsFrom returns requests made by userID, newest first.
func ListSwapRequestsFrom(ctx context.Context, db *sql.DB, userID string) ([]model.SwapRequest, error) {
	return listSwapRequests(ctx, db, `from_user_id = ?`, userID)
}

func listSwapRequests(ctx context.Context, q queryer, where string, args ...any) ([]model.SwapRequest, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+swapColumns+` FROM swap_requests WHERE `+where+` ORDER BY created_at DESC, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing swap requests: %w", err)
	}

	reqs := []model.SwapRequest{}
	for rows.Next() {
		var r model.SwapRequest
		if err := rows.Scan(&r.ID, &r.FromUserID, &r.ToUserID, &r.RequestedItemID, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning swap request: %w", err)
		}
		reqs = append(reqs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing swap requests: %w", err)
	}

	if err := loadOfferedItemIDs(ctx, q, reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func loadOfferedItemIDs(ctx context.Context, q queryer, reqs []model.SwapRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	index := make(map[string]int, len(reqs))
	ids := make([]string, len(reqs))
	for i := range reqs {
		index[reqs[i].ID] = i
		ids[i] = reqs[i].ID
		reqs[i].OfferedItemIDs = []string{}
	}

	query, args := inClause(`SELECT swap_request_id, item_id FROM swap_offered_items WHERE swap_request_id IN `, ids)
	rows, err := q.QueryContext(ctx, query+` ORDER BY swap_request_id, position`, args...)
	if err != nil {
		return fmt.Errorf("loading offered items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reqID, itemID string
		if err := rows.Scan(&reqID, &itemID); err != nil {
			return fmt.Errorf("scanning offered item: %w", err)
		}
		i := index[reqID]
		reqs[i].OfferedItemIDs = append(reqs[i].OfferedItemIDs, itemID)
	}
	return rows.Err()
}

// AcceptSwapRequest moves a pending request to accepted and locks every
// involved item by moving it from available to pending. If any item is no
// longer available the transaction is rolled back with
// model.ErrItemUnavailable. Other pending requests involving the locked items
// are rejected in the same transaction.
func AcceptSwapRequest(ctx context.Context, db *sql.DB, id, actorID string, now int64) (*SwapTransition, error) {
	return transitionSwap(ctx, db, id, actorID, model.SwapStatusAccepted, now,
		func(tx *sql.Tx, req *model.SwapRequest) ([]model.SwapRequest, error) {
			ids := req.ItemIDs()
			if err := setItemStatus(ctx, tx, ids, model.ItemStatusAvailable, model.ItemStatusPending); err != nil {
				return nil, err
			}
			return rejectConflicting(ctx, tx, req.ID, ids, now)
		})
}

// RejectSwapRequest moves a pending request to rejected. Items are untouched.
func RejectSwapRequest(ctx context.Context, db *sql.DB, id, actorID string, now int64) (*SwapTransition, error) {
	return transitionSwap(ctx, db, id, actorID, model.SwapStatusRejected, now, nil)
}

// CompleteSwapRequest moves an accepted request to completed and marks every
// involved item as swapped.
func CompleteSwapRequest(ctx context.Context, db *sql.DB, id, actorID string, now int64) (*SwapTransition, error) {
	return transitionSwap(ctx, db, id, actorID, model.SwapStatusCompleted, now,
		func(tx *sql.Tx, req *model.SwapRequest) ([]model.SwapRequest, error) {
			return nil, setItemStatus(ctx, tx, req.ItemIDs(), model.ItemStatusPending, model.ItemStatusSwapped)
		})
}

// transitionSwap authorizes and applies a status change, running effect in
// the same transaction. The status update is conditioned on the status that
// was read, so concurrent transitions of one request cannot both succeed.
func transitionSwap(
	ctx context.Context, db *sql.DB, id, actorID, to string, now int64,
	effect func(tx *sql.Tx, req *model.SwapRequest) ([]model.SwapRequest, error),
) (*SwapTransition, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := getSwapRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, model.ErrNotFound
	}

	if err := model.AuthorizeTransition(req, actorID, to); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE swap_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, req.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("updating swap request: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("updating swap request: %w", err)
	} else if n != 1 {
		return nil, model.ErrInvalidTransition
	}

	var rejected []model.SwapRequest
	if effect != nil {
		if rejected, err = effect(tx, req); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing swap transition: %w", err)
	}

	req.Status = to
	req.UpdatedAt = now
	return &SwapTransition{Request: req, AutoRejected: rejected}, nil
}

// setItemStatus moves every item in ids from one status to another, failing
// with model.ErrItemUnavailable if any item is not in the expected status.
func setItemStatus(ctx context.Context, tx *sql.Tx, ids []string, from, to string) error {
	for _, id := range ids {
		result, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ? WHERE id = ? AND status = ?`,
			to, id, from,
		)
		if err != nil {
			return fmt.Errorf("updating item status: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating item status: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("item %s: %w", id, model.ErrItemUnavailable)
		}
	}
	return nil
}

// rejectConflicting rejects all pending requests other than exceptID that
// request or offer any of itemIDs.
func rejectConflicting(ctx context.Context, tx *sql.Tx, exceptID string, itemIDs []string, now int64) ([]model.SwapRequest, error) {
	placeholders, args := inClause("", itemIDs)
	where := `status = ? AND id <> ? AND (requested_item_id IN ` + placeholders +
		` OR id IN (SELECT swap_request_id FROM swap_offered_items WHERE item_id IN ` + placeholders + `))`

	all := []any{model.SwapStatusPending, exceptID}
	all = append(all, args...)
	all = append(all, args...)

	conflicting, err := listSwapRequests(ctx, tx, where, all...)
	if err != nil {
		return nil, err
	}

	for i := range conflicting {
		_, err := tx.ExecContext(ctx,
			`UPDATE swap_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			model.SwapStatusRejected, now, conflicting[i].ID, model.SwapStatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("rejecting conflicting request: %w", err)
		}
		conflicting[i].Status = model.SwapStatusRejected
		conflicting[i].UpdatedAt = now
	}
	return conflicting, nil
}
