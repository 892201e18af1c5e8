package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwisp/wisp/pkg/events"
	"github.com/cloudwisp/wisp/pkg/log"
	"github.com/cloudwisp/wisp/pkg/manager"
	"github.com/cloudwisp/wisp/pkg/metrics"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const recentEventCap = 100

// Server is the admin API server. The caller is assumed to be
// pre-authenticated by the deployment's front end; only the delegated
// per-site routes enforce management tokens themselves.
type Server struct {
	mgr    *manager.Manager
	broker *events.Broker
	router *mux.Router
	logger zerolog.Logger

	httpServer *http.Server

	mu     sync.RWMutex
	recent []*events.Event
	sub    events.Subscriber
	stopCh chan struct{}
}

// NewServer creates a new API server instance
func NewServer(mgr *manager.Manager, broker *events.Broker) *Server {
	s := &Server{
		mgr:    mgr,
		broker: broker,
		router: mux.NewRouter(),
		logger: log.WithComponent("api"),
		stopCh: make(chan struct{}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.observeMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Registry
	v1.HandleFunc("/sites", s.handleRegisterSite).Methods("POST")
	v1.HandleFunc("/sites", s.handleListSites).Methods("GET")
	v1.HandleFunc("/sites/{id}", s.handleGetSite).Methods("GET")
	v1.HandleFunc("/sites/{id}", s.handleRemoveSite).Methods("DELETE")
	v1.HandleFunc("/sites/{id}/mirror", s.handleSiteMirror).Methods("GET")

	// Live controller views (source of truth, not the mirror)
	v1.HandleFunc("/sites/{id}/users", s.handleSiteUsers).Methods("GET")
	v1.HandleFunc("/sites/{id}/clients", s.handleSiteClients).Methods("GET")
	v1.HandleFunc("/sites/{id}/identity", s.handleSiteIdentity).Methods("GET")
	v1.HandleFunc("/sites/{id}/resources", s.handleSiteResources).Methods("GET")

	// Tokens and token-gated delegated access
	v1.HandleFunc("/tokens", s.handleIssueToken).Methods("POST")
	delegated := v1.PathPrefix("/delegate/{id}").Subrouter()
	delegated.Use(s.requireSiteToken)
	delegated.HandleFunc("/users", s.handleSiteUsers).Methods("GET")
	delegated.HandleFunc("/clients", s.handleSiteClients).Methods("GET")
	delegated.HandleFunc("/identity", s.handleSiteIdentity).Methods("GET")

	// Orchestration
	v1.HandleFunc("/fanout", s.handleFanout).Methods("POST")
	v1.HandleFunc("/sync/users", s.handleSyncUser).Methods("POST")

	// Recent status transitions for dashboards
	v1.HandleFunc("/events", s.handleEvents).Methods("GET")
}

// Start begins serving on addr and collecting recent events.
// Blocks until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.sub = s.broker.Subscribe()
	go s.collectEvents()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("admin API listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully
func (s *Server) Stop() {
	close(s.stopCh)
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) collectEvents() {
	for {
		select {
		case event, ok := <-s.sub:
			if !ok {
				return
			}
			s.mu.Lock()
			s.recent = append(s.recent, event)
			if len(s.recent) > recentEventCap {
				s.recent = s.recent[len(s.recent)-recentEventCap:]
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// observeMiddleware records request metrics and an access log line
func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(route, http.StatusText(sw.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requireSiteToken gates delegated routes on a valid management token
// for the site in the path. Every rejection is the same 401: the
// handler must not reveal whether a token almost matched.
func (s *Server) requireSiteToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siteID := mux.Vars(r)["id"]
		secret := bearerToken(r)
		if secret == "" || !s.mgr.VerifyToken(siteID, secret) {
			writeError(w, http.StatusUnauthorized, "authorization failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	recent := make([]*events.Event, len(s.recent))
	copy(recent, s.recent)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, recent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
