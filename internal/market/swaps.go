package market

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/erazemk/menjalnica/internal/live"
	"github.com/erazemk/menjalnica/internal/model"
	"github.com/erazemk/menjalnica/internal/store"
)

// CreateSwapRequest proposes to exchange offeredItemIDs, owned by fromUserID,
// for the item requestedItemID.
func (s *Service) CreateSwapRequest(ctx context.Context, fromUserID, requestedItemID string, offeredItemIDs []string) (*model.SwapRequest, error) {
	if requestedItemID == "" {
		return nil, model.NewValidationError("requestedItemId", "this field is required")
	}

	req, err := store.CreateSwapRequest(ctx, s.DB, &model.SwapRequest{
		ID:              uuid.NewString(),
		FromUserID:      fromUserID,
		RequestedItemID: requestedItemID,
		OfferedItemIDs:  offeredItemIDs,
		CreatedAt:       s.now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	if s.Metrics != nil {
		s.Metrics.SwapRequests.Inc()
	}
	slog.Info("swap requested", "request", req.ID, "from", req.FromUserID, "to", req.ToUserID)
	s.notify(live.SwapsTopic(req.FromUserID), live.SwapsTopic(req.ToUserID))
	return s.expandOne(ctx, req)
}

// AcceptSwapRequest accepts a pending request on behalf of the requested
// item's owner. All involved items become pending and other pending requests
// for them are rejected.
func (s *Service) AcceptSwapRequest(ctx context.Context, actorID, id string) (*model.SwapRequest, error) {
	return s.transition(ctx, model.SwapStatusAccepted, actorID, id, store.AcceptSwapRequest)
}

// RejectSwapRequest rejects a pending request on behalf of the requested
// item's owner.
func (s *Service) RejectSwapRequest(ctx context.Context, actorID, id string) (*model.SwapRequest, error) {
	return s.transition(ctx, model.SwapStatusRejected, actorID, id, store.RejectSwapRequest)
}

// CompleteSwapRequest marks an accepted request as completed on behalf of
// either participant. All involved items become swapped.
func (s *Service) CompleteSwapRequest(ctx context.Context, actorID, id string) (*model.SwapRequest, error) {
	return s.transition(ctx, model.SwapStatusCompleted, actorID, id, store.CompleteSwapRequest)
}

type transitionFunc func(ctx context.Context, db *sql.DB, id, actorID string, now int64) (*store.SwapTransition, error)

func (s *Service) transition(ctx context.Context, to, actorID, id string, fn transitionFunc) (*model.SwapRequest, error) {
	tr, err := fn(ctx, s.DB, id, actorID, s.now().UnixMilli())
	if err != nil {
		return nil, err
	}

	if s.Metrics != nil {
		s.Metrics.SwapTransitions.WithLabelValues(to).Inc()
		if n := len(tr.AutoRejected); n > 0 {
			s.Metrics.SwapTransitions.WithLabelValues(model.SwapStatusRejected).Add(float64(n))
		}
	}
	slog.Info("swap request updated", "request", id, "status", to, "by", actorID,
		"auto_rejected", len(tr.AutoRejected))

	req := tr.Request
	topics := []string{live.SwapsTopic(req.FromUserID), live.SwapsTopic(req.ToUserID)}
	if to != model.SwapStatusRejected {
		topics = append(topics, live.ItemsTopic(req.FromUserID), live.ItemsTopic(req.ToUserID))
	}
	for _, r := range tr.AutoRejected {
		topics = append(topics, live.SwapsTopic(r.FromUserID), live.SwapsTopic(r.ToUserID))
	}
	s.notify(dedupe(topics)...)

	return s.expandOne(ctx, req)
}

// GetSwapRequest returns a request visible to actorID.
func (s *Service) GetSwapRequest(ctx context.Context, actorID, id string) (*model.SwapRequest, error) {
	req, err := store.GetSwapRequest(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, model.ErrNotFound
	}
	if !req.IsParticipant(actorID) {
		return nil, model.ErrForbidden
	}
	return s.expandOne(ctx, req)
}

// ListIncomingRequests returns requests for userID's items, newest first.
func (s *Service) ListIncomingRequests(ctx context.Context, userID string) ([]model.SwapRequest, error) {
	reqs, err := store.ListSwapRequestsTo(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, reqs)
}

// ListOutgoingRequests returns requests made by userID, newest first.
func (s *Service) ListOutgoingRequests(ctx context.Context, userID string) ([]model.SwapRequest, error) {
	reqs, err := store.ListSwapRequestsFrom(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, reqs)
}

// WatchIncomingRequests streams snapshots of ListIncomingRequests.
func (s *Service) WatchIncomingRequests(ctx context.Context, userID string) (*live.Subscription[[]model.SwapRequest], error) {
	return live.Watch(ctx, s.Hub, live.SwapsTopic(userID), func(ctx context.Context) ([]model.SwapRequest, error) {
		return s.ListIncomingRequests(ctx, userID)
	})
}

func (s *Service) expandOne(ctx context.Context, req *model.SwapRequest) (*model.SwapRequest, error) {
	out, err := s.expand(ctx, []model.SwapRequest{*req})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// expand fills in participant emails and the requested and offered items.
func (s *Service) expand(ctx context.Context, reqs []model.SwapRequest) ([]model.SwapRequest, error) {
	var userIDs, itemIDs []string
	for _, r := range reqs {
		userIDs = append(userIDs, r.FromUserID, r.ToUserID)
		itemIDs = append(itemIDs, r.ItemIDs()...)
	}

	emails, err := store.GetUserEmails(ctx, s.DB, dedupe(userIDs))
	if err != nil {
		return nil, err
	}
	items, err := store.GetItems(ctx, s.DB, dedupe(itemIDs))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	for i := range reqs {
		r := &reqs[i]
		r.FromUserEmail = emails[r.FromUserID]
		r.ToUserEmail = emails[r.ToUserID]
		if it, ok := byID[r.RequestedItemID]; ok {
			r.RequestedItem = &it
		}
		r.OfferedItems = make([]model.Item, 0, len(r.OfferedItemIDs))
		for _, id := range r.OfferedItemIDs {
			if it, ok := byID[id]; ok {
				r.OfferedItems = append(r.OfferedItems, it)
			}
		}
	}
	return reqs, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
