package api

import (
	"net/http"

	"github.com/erazemk/menjalnica/internal/blob"
)

// BlobsHandler serves images kept in the database blob store.
type BlobsHandler struct {
	Blobs *blob.SQLiteStore
}

// Get handles GET /api/blobs/{key...}.
func (h *BlobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.Blobs.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	// Item image keys are unique and profile photo URLs carry a version.
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
