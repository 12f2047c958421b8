// Package api serves period-filtered datasets and the cache administration endpoints.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/mtlprog/nftdash/internal/period"
)

// NewServer creates an HTTP server with all routes configured. metrics may be nil.
func NewServer(port string, datasets Datasets, filter *period.Filter, metrics http.Handler, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewMux(datasets, filter, metrics, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers the API routes.
func NewMux(datasets Datasets, filter *period.Filter, metrics http.Handler, adminAPIKey string) *http.ServeMux {
	handler := NewHandler(datasets, filter)

	admin := func(h http.HandlerFunc) http.Handler {
		if adminAPIKey == "" {
			return h
		}
		return requireAuth(adminAPIKey, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/datasets", handler.ListDatasets)
	mux.HandleFunc("GET /api/v1/datasets/{name}", handler.GetDataset)
	mux.Handle("GET /api/v1/cache", admin(handler.ListCache))
	mux.Handle("GET /api/v1/cache/stats", admin(handler.CacheStats))
	mux.Handle("DELETE /api/v1/cache/{name}", admin(handler.DeleteCache))
	mux.Handle("DELETE /api/v1/cache", admin(handler.ClearCache))
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
