package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/erazemk/menjalnica/internal/blob"
	"github.com/erazemk/menjalnica/internal/identity"
	"github.com/erazemk/menjalnica/internal/market"
	"github.com/erazemk/menjalnica/internal/metrics"
)

// Deps are the services the router dispatches to.
type Deps struct {
	DB       *sql.DB
	Identity *identity.Service
	Market   *market.Service
	// Blobs is set when images are kept in the database and must be served
	// by this server.
	Blobs *blob.SQLiteStore
	// Metrics is optional; /metrics is not registered without it.
	Metrics *metrics.Metrics

	CORSAllowedOrigins []string
	// LoginRateLimit is the number of register and login attempts allowed
	// per client IP per minute. Zero disables the limit.
	LoginRateLimit int
	Development    bool
}

// NewRouter creates the API router with all endpoints registered and the
// middleware chain applied.
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Identity: deps.Identity}
	itemsHandler := &ItemsHandler{Market: deps.Market}
	swapsHandler := &SwapsHandler{Market: deps.Market}

	authMW := AuthMiddleware(deps.Identity, false)
	streamAuthMW := AuthMiddleware(deps.Identity, true)

	limit := func(h http.HandlerFunc) http.Handler { return h }
	if deps.LoginRateLimit > 0 {
		limiter := httprate.LimitByIP(deps.LoginRateLimit, time.Minute)
		limit = func(h http.HandlerFunc) http.Handler { return limiter(h) }
	}

	// Public: account creation and sign-in.
	mux.Handle("POST /api/auth/register", limit(authHandler.Register))
	mux.Handle("POST /api/auth/login", limit(authHandler.Login))

	// Profile.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/me", authMW(http.HandlerFunc(authHandler.Me)))
	mux.Handle("PUT /api/me", authMW(http.HandlerFunc(authHandler.UpdateMe)))
	mux.Handle("PUT /api/me/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("PUT /api/me/photo", authMW(http.HandlerFunc(authHandler.UploadPhoto)))

	// Items.
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("GET /api/items/mine", authMW(http.HandlerFunc(itemsHandler.Mine)))
	mux.Handle("GET /api/items/mine/stream", streamAuthMW(http.HandlerFunc(itemsHandler.StreamMine)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))

	// Swap requests.
	mux.Handle("POST /api/swaps", authMW(http.HandlerFunc(swapsHandler.Create)))
	mux.Handle("GET /api/swaps/incoming", authMW(http.HandlerFunc(swapsHandler.Incoming)))
	mux.Handle("GET /api/swaps/outgoing", authMW(http.HandlerFunc(swapsHandler.Outgoing)))
	mux.Handle("GET /api/swaps/incoming/stream", streamAuthMW(http.HandlerFunc(swapsHandler.StreamIncoming)))
	mux.Handle("GET /api/swaps/{id}", authMW(http.HandlerFunc(swapsHandler.Get)))
	mux.Handle("POST /api/swaps/{id}/accept", authMW(http.HandlerFunc(swapsHandler.Accept)))
	mux.Handle("POST /api/swaps/{id}/reject", authMW(http.HandlerFunc(swapsHandler.Reject)))
	mux.Handle("POST /api/swaps/{id}/complete", authMW(http.HandlerFunc(swapsHandler.Complete)))

	// Image downloads are public so that image URLs work in <img> tags.
	if deps.Blobs != nil {
		blobsHandler := &BlobsHandler{Blobs: deps.Blobs}
		mux.HandleFunc("GET "+blob.DownloadPath+"{key...}", blobsHandler.Get)
	}

	// Ops.
	mux.Handle("GET /health", HealthHandler(deps.DB))
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = SecurityHeaders(deps.Development)(handler)
	handler = CORSMiddleware(deps.CORSAllowedOrigins)(handler)
	handler = RecoveryMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = middleware.RealIP(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// HealthHandler reports whether the database is reachable.
func HealthHandler(db *sql.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
