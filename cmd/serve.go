package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mapmind/internal/geospatial"
	"github.com/sells-group/mapmind/internal/mapengine"
	"github.com/sells-group/mapmind/internal/selection"
	"github.com/sells-group/mapmind/internal/session"
)

var (
	servePort    int
	serveIdleTTL time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve map sessions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := session.NewMetrics(promReg)

		analyzer := newAnalysisClient(cfg.Analysis)
		geocoder := newGeocoder(cfg.Geocode)
		opts := sessionOptions(cfg, metrics)
		registry := session.NewRegistry(func() *session.Session {
			return session.New(analyzer, geocoder, opts)
		}, metrics)
		defer registry.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(registry, promReg, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
		})
		g.Go(func() error {
			expireIdle(gctx, registry, serveIdleTTL)
			return nil
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveIdleTTL, "idle-ttl", 30*time.Minute, "close sessions idle for longer than this")
	rootCmd.AddCommand(serveCmd)
}

// expireIdle closes idle sessions until ctx ends.
func expireIdle(ctx context.Context, registry *session.Registry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(max(ttl/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			registry.Expire(now.Add(-ttl))
		}
	}
}

func buildRouter(registry *session.Registry, gatherer prometheus.Gatherer, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h := &sessionHandlers{registry: registry}
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.withSession(h.snapshot))
			r.Delete("/", h.remove)
			r.Post("/load", h.withSession(h.load))
			r.Post("/click", h.withSession(h.click))
			r.Post("/confirm", h.withSession(h.confirm))
			r.Post("/reset", h.withSession(h.reset))
			r.Post("/new-analysis", h.withSession(h.newAnalysis))
			r.Post("/radius", h.withSession(h.radius))
			r.Post("/search", h.withSession(h.search))
			r.Post("/events", h.withSession(h.event))
			r.Post("/interaction", h.withSession(h.interaction))
		})
	})
	return r
}

type sessionHandlers struct {
	registry *session.Registry
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

func (h *sessionHandlers) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.registry.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		next(w, r, s)
	}
}

func (h *sessionHandlers) create(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Create()
	writeSnapshot(w, http.StatusCreated, s)
}

func (h *sessionHandlers) remove(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandlers) snapshot(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	writeSnapshot(w, http.StatusOK, s)
}

func (h *sessionHandlers) load(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	s.MarkLoaded()
	writeSnapshot(w, http.StatusOK, s)
}

type pointRequest struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (h *sessionHandlers) click(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req pointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.Click(geospatial.Coordinate{Lng: req.Lng, Lat: req.Lat})
	writeSnapshot(w, http.StatusOK, s)
}

func (h *sessionHandlers) confirm(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	if err := s.Confirm(); err != nil {
		if selection.IsNoSelection(err) {
			writeError(w, http.StatusConflict, "Please select a location on the map first.")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeSnapshot(w, http.StatusAccepted, s)
}

func (h *sessionHandlers) reset(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	s.Reset()
	writeSnapshot(w, http.StatusOK, s)
}

func (h *sessionHandlers) newAnalysis(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	s.NewAnalysis()
	writeSnapshot(w, http.StatusOK, s)
}

func (h *sessionHandlers) radius(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req struct {
		RadiusKm float64 `json:"radius_km"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.SetRadius(req.RadiusKm); err != nil {
		writeError(w, http.StatusBadRequest, "radius must be positive")
		return
	}
	writeSnapshot(w, http.StatusOK, s)
}

func (h *sessionHandlers) search(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req struct {
		Query string `json:"query"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	place, err := s.Search(r.Context(), req.Query)
	if err != nil {
		zap.L().Warn("place search failed", zap.String("session", s.ID()), zap.Error(err))
		writeError(w, http.StatusBadGateway, "place search failed")
		return
	}
	if !place.Matched {
		writeError(w, http.StatusNotFound, "no place matched the query")
		return
	}
	writeSnapshot(w, http.StatusOK, s)
}

type eventRequest struct {
	Layer       string              `json:"layer"`
	Kind        mapengine.EventKind `json:"kind"`
	Lng         float64             `json:"lng"`
	Lat         float64             `json:"lat"`
	ToleranceKm float64             `json:"tolerance_km"`
}

func (h *sessionHandlers) event(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req eventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ToleranceKm <= 0 {
		req.ToleranceKm = 0.5
	}
	s.LayerEvent(mapengine.LayerEvent{
		Layer: req.Layer,
		Kind:  req.Kind,
		At:    geospatial.Coordinate{Lng: req.Lng, Lat: req.Lat},
	}, req.ToleranceKm)
	writeSnapshot(w, http.StatusOK, s)
}

func (h *sessionHandlers) interaction(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req struct {
		Active bool `json:"active"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.SetInteracting(req.Active)
	writeSnapshot(w, http.StatusOK, s)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeSnapshot(w http.ResponseWriter, status int, s *session.Session) {
	snap, err := s.Snapshot()
	if err != nil {
		zap.L().Error("session snapshot failed", zap.String("session", s.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	writeJSON(w, status, snap)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}
