// Package api serves scored snapshots, raw input layers and the chat
// assistant over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/chat"
	"github.com/sells-group/hscore/internal/model"
	"github.com/sells-group/hscore/internal/resilience"
	"github.com/sells-group/hscore/internal/store"
	"github.com/sells-group/hscore/pkg/anthropic"
)

// Cache groups.
const (
	groupOpportunity = "opportunity"
	groupLayer       = "layer"
)

// Layer names served under /api/layers/{name}.geojson.
const (
	LayerHawkerCentres = "hawker-centres"
	LayerMRTExits      = "mrt-exits"
	LayerBusStops      = "bus-stops"
)

// maxBodyBytes bounds request bodies; a full snapshot upload is ~20 MB.
const maxBodyBytes = 64 << 20

// Assistant answers chat requests. *chat.Assistant satisfies it.
type Assistant interface {
	Chat(ctx context.Context, messages []anthropic.Message) (*chat.Reply, error)
	Insight(ctx context.Context, s model.ScoredSubzone, total int) (*chat.Reply, error)
}

// LayerFunc produces a raw input layer as GeoJSON.
type LayerFunc func(ctx context.Context) ([]byte, error)

// Options configures a Server.
type Options struct {
	AdminToken     string
	AllowedOrigins []string
	Layers         map[string]LayerFunc
	CacheEntries   int
	CacheTTL       time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	store     store.Store
	assistant Assistant
	opts      Options
	cache     *ResponseCache
	log       *zap.Logger
}

// New creates a Server. assistant may be nil, in which case the chat
// routes answer 503.
func New(st store.Store, assistant Assistant, opts Options) *Server {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		store:     st,
		assistant: assistant,
		opts:      opts,
		cache:     NewResponseCache(opts.CacheEntries, opts.CacheTTL),
		log:       zap.L().With(zap.String("component", "api")),
	}
}

// Cache returns the response cache.
func (s *Server) Cache() *ResponseCache {
	return s.cache
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/opportunity.geojson", s.handleOpportunity)
		r.Get("/subzones", s.handleSubzones)
		r.Get("/layers/{file}", s.handleLayer)

		r.Post("/chat", s.handleChat)
		r.Post("/chat/subzone-insight", s.handleInsight)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/snapshots", s.handleListSnapshots)
			r.Post("/snapshots", s.handleIngest)
			r.Post("/snapshots/{id}/restore", s.handleRestore)
			r.Get("/cache", s.handleCacheStats)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if b, ok := s.assistant.(breakerReporter); ok {
		resp["assistant"] = b.BreakerStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// breakerReporter is implemented by assistants guarded by a circuit breaker.
type breakerReporter interface {
	BreakerStats() resilience.Stats
}

// requireAdmin checks the bearer token. An unset token disables the admin
// routes.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken == "" {
			writeError(w, http.StatusForbidden, "admin routes are disabled")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.opts.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
