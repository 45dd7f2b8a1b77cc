// Package web provides the HTTP control surface: process lifecycle and sync
// endpoints for operators, plus webhook endpoints the in-page observer script
// pushes to. All routes except /health require the shared bridge secret.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/events"
	"github.com/searchlet/chatbridge/internal/logging"
	"github.com/searchlet/chatbridge/internal/scheduler"
)

// secretHeader carries the shared secret on every authenticated request.
const secretHeader = "X-Bridge-Secret"

// ProcessManager is the process lifecycle surface the server drives.
type ProcessManager interface {
	Spawn(ownerID string) error
	Kill(ownerID string) error
	ForceKill(reason core.StopReason)
	RecordActivity()
	SetLinked(linked bool, profileLabel string) bool
	Status() core.ProcessState
	IsActuallyRunning() bool
}

// LinkChecker exposes the link probe's view of the page.
type LinkChecker interface {
	CheckOnce(ctx context.Context) core.LinkStatus
	Cached() core.LinkStatus
}

// SyncManager is the scheduling surface the server drives.
type SyncManager interface {
	RequestSync(manual bool) (string, error)
	CompleteSyncRequest(token string, success bool, cause error) error
	Pending() *core.PendingSyncRequest
	Snapshot() scheduler.Status
}

// ChatCommander executes in-page chat commands.
type ChatCommander interface {
	GetRecentChats(ctx context.Context) ([]core.ChatInfo, error)
	SyncSpecificChats(ctx context.Context, names []string) ([]core.ChatSyncResult, error)
}

// Server provides the HTTP control surface.
type Server struct {
	router    chi.Router
	process   ProcessManager
	link      LinkChecker
	syncs     SyncManager
	chats     ChatCommander
	store     core.SyncStore
	notifier  core.BackendNotifier
	bus       *events.EventBus
	logger    *logging.Logger
	secret    string
	cfg       config.ServerConfig
	startedAt time.Time
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithStore sets the persistence layer used for message batches.
func WithStore(store core.SyncStore) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithNotifier sets the backend collaborator client.
func WithNotifier(notifier core.BackendNotifier) ServerOption {
	return func(s *Server) {
		s.notifier = notifier
	}
}

// NewServer creates the control-surface server.
func NewServer(cfg config.ServerConfig, process ProcessManager, link LinkChecker, syncs SyncManager, chats ChatCommander, bus *events.EventBus, logger *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		process:   process,
		link:      link,
		syncs:     syncs,
		chats:     chats,
		bus:       bus,
		logger:    logger.WithComponent("web"),
		secret:    cfg.SharedSecret,
		cfg:       cfg,
		startedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(3 * time.Minute))
	r.Use(s.loggingMiddleware)

	if s.cfg.EnableCORS {
		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", secretHeader},
			AllowCredentials: false,
			MaxAge:           300,
		})
		r.Use(corsHandler.Handler)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/process", func(r chi.Router) {
			r.Post("/spawn", s.handleSpawn)
			r.Post("/stop", s.handleStop)
			r.Post("/force-stop", s.handleForceStop)
			r.Post("/activity", s.handleActivity)
			r.Get("/status", s.handleProcessStatus)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/trigger", s.handleSyncTrigger)
			r.Get("/status", s.handleSyncStatus)
		})

		r.Route("/chats", func(r chi.Router) {
			r.Get("/recent", s.handleRecentChats)
			r.Post("/sync", s.handleChatSync)
		})

		r.Route("/webhook", func(r chi.Router) {
			r.Post("/linked", s.handleWebhookLinked)
			r.Post("/messages", s.handleWebhookMessages)
			r.Post("/heartbeat", s.handleWebhookHeartbeat)
			r.Get("/pending-sync", s.handleWebhookPendingSync)
			r.Post("/sync-complete", s.handleWebhookSyncComplete)
		})
	})

	return r
}

// authMiddleware enforces the shared bridge secret.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" || r.Header.Get(secretHeader) != s.secret {
			respondError(w, http.StatusUnauthorized, "invalid or missing bridge secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// handleHealth returns server health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting control server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondDomainError maps a domain error onto an HTTP status.
func respondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch core.GetCategory(err) {
	case core.ErrCatValidation:
		status = http.StatusUnprocessableEntity
	case core.ErrCatConflict, core.ErrCatState:
		status = http.StatusConflict
	case core.ErrCatAuth:
		status = http.StatusForbidden
	case core.ErrCatTimeout:
		status = http.StatusGatewayTimeout
	case core.ErrCatNetwork, core.ErrCatUpstream:
		status = http.StatusBadGateway
	}

	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		respondJSON(w, status, errorResponse{Error: domErr.Message, Code: domErr.Code})
		return
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody decodes a JSON request body into dst with a sane size cap.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4<<20))
	return dec.Decode(dst)
}
