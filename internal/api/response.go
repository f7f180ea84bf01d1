package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/menjalnica/internal/imaging"
	"github.com/erazemk/menjalnica/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// writeError maps a service error to an HTTP response. Unexpected errors are
// logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *model.ValidationError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &ve):
		jsonResponse(w, http.StatusUnprocessableEntity, validationResponse{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, imaging.ErrImageTooLarge), errors.As(err, &tooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, "image exceeds 5 MiB")
	case errors.Is(err, imaging.ErrUnsupportedImage):
		jsonError(w, http.StatusBadRequest, "unsupported image format")
	case errors.Is(err, imaging.ErrDecodeImage):
		jsonError(w, http.StatusBadRequest, "image could not be decoded")
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrForbidden):
		jsonError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, model.ErrBadCredentials):
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrItemUnavailable),
		errors.Is(err, model.ErrEmailTaken):
		jsonError(w, http.StatusConflict, rootMessage(err))
	case errors.Is(err, model.ErrSelfSwap),
		errors.Is(err, model.ErrNoOfferedItems),
		errors.Is(err, model.ErrNotOwner):
		jsonError(w, http.StatusUnprocessableEntity, rootMessage(err))
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

// rootMessage returns the message of the sentinel at the bottom of err's chain.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
