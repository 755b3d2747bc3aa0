package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/inboxmirror/inboxd/internal/bus"
	"github.com/inboxmirror/inboxd/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// Inbound webhook bodies larger than this are rejected outright.
const maxWebhookBody = 4 << 20

// Server exposes the webhook intake and the control/read API.
type Server struct {
	srv      *http.Server
	db       *store.DB
	bus      *bus.Bus
	router   EventRouter
	importer MessageImporter
	schema   *jsonschema.Schema
	logger   *zap.Logger
}

// NewServer builds the HTTP server on the given listen address.
func NewServer(addr string, db *store.DB, b *bus.Bus, rt EventRouter, importer MessageImporter, logger *zap.Logger) (*Server, error) {
	schema, err := compileWebhookSchema()
	if err != nil {
		return nil, err
	}
	s := &Server{
		db:       db,
		bus:      b,
		router:   rt,
		importer: importer,
		schema:   schema,
		logger:   logger,
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/webhooks/{provider}", s.handleWebhook).Methods(http.MethodPost)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/sync", s.handleSyncStatus).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/backfill", s.handleBackfill).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id}/import", s.handleImport).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id}/chats", s.handleListChats).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/search", s.handleSearch).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/profile-views", s.handleProfileViews).Methods(http.MethodGet)
	v1.HandleFunc("/chats/{id}/messages", s.handleListMessages).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Handler exposes the routed handler, used by tests and the daemon.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
