package model

import "slices"

// SwapRequest is a proposal to exchange one or more of the requester's items
// for one item owned by another user.
type SwapRequest struct {
	ID              string   `json:"id"`
	FromUserID      string   `json:"fromUserId"`
	ToUserID        string   `json:"toUserId"`
	RequestedItemID string   `json:"requestedItemId"`
	OfferedItemIDs  []string `json:"offeredItemIds"`
	Status          string   `json:"status"`
	CreatedAt       int64    `json:"createdAt"`
	UpdatedAt       int64    `json:"updatedAt"`

	// Joined fields (not always populated).
	FromUserEmail string `json:"fromUserEmail,omitempty"`
	ToUserEmail   string `json:"toUserEmail,omitempty"`
	RequestedItem *Item  `json:"requestedItem,omitempty"`
	OfferedItems  []Item `json:"offeredItems,omitempty"`
}

// Swap request statuses.
const (
	SwapStatusPending   = "pending"
	SwapStatusAccepted  = "accepted"
	SwapStatusRejected  = "rejected"
	SwapStatusCompleted = "completed"
)

// swapTransitions lists the allowed forward edges. Statuses missing from the
// map are terminal.
var swapTransitions = map[string][]string{
	SwapStatusPending:  {SwapStatusAccepted, SwapStatusRejected},
	SwapStatusAccepted: {SwapStatusCompleted},
}

// CanTransition reports whether a swap request may move from one status to another.
func CanTransition(from, to string) bool {
	return slices.Contains(swapTransitions[from], to)
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	return len(swapTransitions[status]) == 0
}

// IsParticipant reports whether userID is the requester or the item owner.
func (r *SwapRequest) IsParticipant(userID string) bool {
	return userID != "" && (userID == r.FromUserID || userID == r.ToUserID)
}

// AuthorizeTransition checks that actorID may move r to the target status.
// Only the owner of the requested item may accept or reject; either
// participant may complete.
func AuthorizeTransition(r *SwapRequest, actorID, to string) error {
	if !CanTransition(r.Status, to) {
		return ErrInvalidTransition
	}
	switch to {
	case SwapStatusAccepted, SwapStatusRejected:
		if actorID != r.ToUserID {
			return ErrForbidden
		}
	case SwapStatusCompleted:
		if !r.IsParticipant(actorID) {
			return ErrForbidden
		}
	}
	return nil
}

// ValidateSwapProposal checks the preconditions for creating a swap request:
// the requested item is available and not the requester's own, and every
// offered item is distinct, owned by the requester and available.
func ValidateSwapProposal(fromUserID string, requested *Item, offered []Item) error {
	if requested.UserID == fromUserID {
		return ErrSelfSwap
	}
	if requested.Status != ItemStatusAvailable {
		return ErrItemUnavailable
	}
	if len(offered) == 0 {
		return ErrNoOfferedItems
	}

	seen := make(map[string]bool, len(offered))
	for _, it := range offered {
		if seen[it.ID] {
			return NewValidationError("offeredItemIds", "contains duplicate items")
		}
		seen[it.ID] = true

		if it.UserID != fromUserID {
			return ErrNotOwner
		}
		if it.Status != ItemStatusAvailable {
			return ErrItemUnavailable
		}
	}
	return nil
}

// ItemIDs returns the requested item followed by all offered items.
func (r *SwapRequest) ItemIDs() []string {
	ids := make([]string, 0, len(r.OfferedItemIDs)+1)
	ids = append(ids, r.RequestedItemID)
	return append(ids, r.OfferedItemIDs...)
}
