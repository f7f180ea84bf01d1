package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/erazemk/menjalnica/internal/imaging"
	"github.com/erazemk/menjalnica/internal/market"
	"github.com/erazemk/menjalnica/internal/model"
)

// multipartOverhead is the allowance for form fields and part headers on top
// of the image itself.
const multipartOverhead = 64 << 10

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	Market *market.Service
}

// Create handles POST /api/items. The body is multipart with the item fields
// and an "image" file part.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxSourceBytes+multipartOverhead)

	if err := r.ParseMultipartForm(imaging.MaxSourceBytes + multipartOverhead); err != nil {
		formFileError(w, r, err)
		return
	}

	fields := model.ItemFields{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Condition:   r.FormValue("condition"),
	}

	// A missing image is reported by the service as a validation error.
	var image io.Reader
	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		image = file
	case !errors.Is(err, http.ErrMissingFile):
		formFileError(w, r, err)
		return
	}

	item, err := h.Market.CreateItem(r.Context(), GetClaims(r.Context()).UserID, fields, image)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// List handles GET /api/items with optional search and category filters.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := market.Filters{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
	}

	items, err := h.Market.ListAvailableItems(r.Context(), GetClaims(r.Context()).UserID, filters)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, items)
}

// Mine handles GET /api/items/mine.
func (h *ItemsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	items, err := h.Market.ListOwnItems(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, items)
}

// StreamMine handles GET /api/items/mine/stream.
func (h *ItemsHandler) StreamMine(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Market.WatchOwnItems(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	streamSnapshots(w, r, sub)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Market.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// formFileError reports a failure to read a multipart body.
func formFileError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, r, err)
	case errors.Is(err, http.ErrMissingFile):
		writeError(w, r, model.NewValidationError("image", "an image is required"))
	default:
		jsonError(w, http.StatusBadRequest, "invalid multipart body")
	}
}
