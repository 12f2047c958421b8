package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mtlprog/nftdash/internal/dataset"
	"github.com/mtlprog/nftdash/internal/domain"
	"github.com/mtlprog/nftdash/internal/memcache"
	"github.com/mtlprog/nftdash/internal/period"
	"github.com/mtlprog/nftdash/internal/refresh"
	"github.com/mtlprog/nftdash/internal/store"
)

// Datasets is the facade surface the API serves.
type Datasets interface {
	Datasets() []string
	Get(ctx context.Context, name string, p domain.Period, force bool) (domain.Envelope, error)
	Options(name string) (period.Options, error)
	List(ctx context.Context) []store.Info
	Delete(ctx context.Context, name string) bool
	Clear(ctx context.Context) int
	MemoryStats() memcache.Stats
}

// Handler provides HTTP endpoints for the dashboard API.
type Handler struct {
	datasets Datasets
	filter   *period.Filter
}

// NewHandler creates a new API handler. filter is used for monthly bucketing only.
func NewHandler(datasets Datasets, filter *period.Filter) *Handler {
	return &Handler{datasets: datasets, filter: filter}
}

// ListDatasets handles GET /api/v1/datasets.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": h.datasets.Datasets(),
		"periods":  domain.Periods,
	})
}

// GetDataset handles GET /api/v1/datasets/{name}?period=7d&refresh=true&bucket=month.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q := r.URL.Query()

	p, err := domain.ParsePeriod(q.Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period, expected one of 24h, 7d, 30d, all")
		return
	}
	force, _ := strconv.ParseBool(q.Get("refresh"))

	env, err := h.datasets.Get(r.Context(), name, p, force)
	if err != nil {
		switch {
		case errors.Is(err, dataset.ErrUnknownDataset):
			writeError(w, http.StatusNotFound, "unknown dataset")
		case errors.Is(err, refresh.ErrUpstreamFetch):
			slog.Error("dataset unavailable", "dataset", name, "error", err)
			writeError(w, http.StatusBadGateway, "upstream unavailable")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "request cancelled")
		default:
			slog.Error("failed to get dataset", "dataset", name, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if q.Get("bucket") == "month" {
		h.addMonthlyBuckets(name, env)
	}
	writeJSON(w, http.StatusOK, env)
}

// addMonthlyBuckets attaches monthly counts for every array spanning more than the
// monthly threshold.
func (h *Handler) addMonthlyBuckets(name string, env domain.Envelope) {
	opts, err := h.datasets.Options(name)
	if err != nil {
		return
	}
	monthly := make(map[string][]period.Bucket)
	for _, field := range env.ArrayFields() {
		recs := env[field].([]any)
		if h.filter.Span(recs, opts) > period.MonthlyThreshold {
			monthly[field] = h.filter.MonthlyBuckets(recs, opts)
		}
	}
	if len(monthly) > 0 {
		env["monthly"] = monthly
	}
}

// ListCache handles GET /api/v1/cache.
func (h *Handler) ListCache(w http.ResponseWriter, r *http.Request) {
	infos := h.datasets.List(r.Context())
	if infos == nil {
		infos = []store.Info{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.datasets.MemoryStats())
}

// DeleteCache handles DELETE /api/v1/cache/{name}.
func (h *Handler) DeleteCache(w http.ResponseWriter, r *http.Request) {
	if !h.datasets.Delete(r.Context(), r.PathValue("name")) {
		writeError(w, http.StatusNotFound, "cache entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCache handles DELETE /api/v1/cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	n := h.datasets.Clear(r.Context())
	slog.Info("cache cleared", "removed", n)
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
