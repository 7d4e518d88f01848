package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"speedlog/internal/storage"
	"speedlog/internal/storage/models"
)

// DefaultLimit is the number of records returned by /api/records when no
// limit is given.
const DefaultLimit = 100

type handler struct {
	metrics *Metrics
	store   storage.Store
	logger  *zap.Logger
}

// NewHandler returns the HTTP handler serving /metrics, /api/records and
// /healthz.
func NewHandler(m *Metrics, store storage.Store, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{metrics: m, store: store, logger: logger}
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	router.GET("/api/records", h.records)
	router.GET("/healthz", h.healthz)
	return router
}

func (h *handler) records(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	limit := DefaultLimit
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", s), http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := h.store.List(req.Context(), limit)
	if err != nil {
		h.logger.Error("cannot list records", zap.Error(err))
		http.Error(w, "cannot list records", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*models.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		h.logger.Warn("cannot write response", zap.Error(err))
	}
}

func (h *handler) healthz(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

// Serve serves handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
