package api

import (
	"context"
	"net/http"

	"github.com/erazemk/menjalnica/internal/market"
	"github.com/erazemk/menjalnica/internal/model"
)

// SwapsHandler handles swap request endpoints.
type SwapsHandler struct {
	Market *market.Service
}

type createSwapRequest struct {
	RequestedItemID string   `json:"requestedItemId"`
	OfferedItemIDs  []string `json:"offeredItemIds"`
}

// Create handles POST /api/swaps.
func (h *SwapsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSwapRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.RequestedItemID == "" {
		jsonError(w, http.StatusBadRequest, "requestedItemId required")
		return
	}

	swap, err := h.Market.CreateSwapRequest(r.Context(), GetClaims(r.Context()).UserID, req.RequestedItemID, req.OfferedItemIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, swap)
}

// Incoming handles GET /api/swaps/incoming.
func (h *SwapsHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Market.ListIncomingRequests(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, reqs)
}

// Outgoing handles GET /api/swaps/outgoing.
func (h *SwapsHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Market.ListOutgoingRequests(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, reqs)
}

// StreamIncoming handles GET /api/swaps/incoming/stream.
func (h *SwapsHandler) StreamIncoming(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Market.WatchIncomingRequests(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	streamSnapshots(w, r, sub)
}

// Get handles GET /api/swaps/{id}.
func (h *SwapsHandler) Get(w http.ResponseWriter, r *http.Request) {
	swap, err := h.Market.GetSwapRequest(r.Context(), GetClaims(r.Context()).UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, swap)
}

// Accept handles POST /api/swaps/{id}/accept.
func (h *SwapsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Market.AcceptSwapRequest)
}

// Reject handles POST /api/swaps/{id}/reject.
func (h *SwapsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Market.RejectSwapRequest)
}

// Complete handles POST /api/swaps/{id}/complete.
func (h *SwapsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Market.CompleteSwapRequest)
}

func (h *SwapsHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, id string) (*model.SwapRequest, error)) {
	swap, err := fn(r.Context(), GetClaims(r.Context()).UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, swap)
}
