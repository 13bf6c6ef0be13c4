// Package server exposes the catalog over HTTP: authentication, file CRUD,
// the admin panel API, and the live audit event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shareport/shareport/internal/audit"
	"github.com/shareport/shareport/internal/auth"
	"github.com/shareport/shareport/internal/catalog"
	"github.com/shareport/shareport/internal/reconcile"
)

// AuditLog is the audit surface the server consumes: emitting is done by the
// catalog; the server reads events back for the admin panel.
type AuditLog interface {
	Subscribe() (<-chan audit.Event, func())
	Snapshot() []audit.Event
}

// Server is the HTTP surface. It owns no domain state; every request is
// delegated to the catalog facade or the reconciler.
type Server struct {
	facade     *catalog.Facade
	reconciler *reconcile.Reconciler
	tokens     *auth.TokenManager
	audit      AuditLog
	logger     zerolog.Logger
	mux        *http.ServeMux
	hub        *sseHub
	maxUpload  int64
	version    string
}

// NewServer wires the HTTP surface.
func NewServer(facade *catalog.Facade, reconciler *reconcile.Reconciler, tokens *auth.TokenManager, auditLog AuditLog, maxUpload int64, logger zerolog.Logger) *Server {
	s := &Server{
		facade:     facade,
		reconciler: reconciler,
		tokens:     tokens,
		audit:      auditLog,
		logger:     logger.With().Str("component", "server").Logger(),
		mux:        http.NewServeMux(),
		hub:        newSSEHub(),
		maxUpload:  maxUpload,
	}
	s.setupRoutes()
	return s
}

// SetVersion sets the version reported by the health endpoint.
func (s *Server) SetVersion(version string) {
	s.version = version
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/api/v1/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin)

	s.mux.HandleFunc("/api/v1/files", s.withUser(s.handleFiles))
	s.mux.HandleFunc("/api/v1/files/", s.withUser(s.handleFileByID))

	s.mux.HandleFunc("/api/v1/admin/users", s.withAdmin(s.handleUsers))
	s.mux.HandleFunc("/api/v1/admin/users/", s.withAdmin(s.handleUserByID))
	s.mux.HandleFunc("/api/v1/admin/purge", s.withAdmin(s.handlePurge))
	s.mux.HandleFunc("/api/v1/admin/reconcile", s.withAdmin(s.handleReconcile))
	s.mux.HandleFunc("/api/v1/admin/audit", s.withAdmin(s.handleAuditLog))
	s.mux.HandleFunc("/api/v1/admin/events", s.withAdmin(s.handleEvents))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// StartEventPump forwards audit events to connected SSE clients until ctx is
// cancelled.
func (s *Server) StartEventPump(ctx context.Context) {
	events, cancel := s.audit.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				s.hub.broadcast(string(data))
			}
		}
	}()
}

type ctxKey int

const claimsKey ctxKey = 0

// claimsFrom returns the verified claims attached by withUser.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

// withUser requires a valid bearer token belonging to an approved account.
// Role comes from the live account record, not the token, so demotions and
// deletions take effect immediately.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.jsonError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.jsonError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := s.tokens.Parse(parts[1])
		if err != nil {
			s.jsonError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		account, err := s.facade.GetAccountByUsername(claims.Username)
		if err != nil {
			s.jsonError(w, "account no longer exists", http.StatusUnauthorized)
			return
		}
		if account.Status != catalog.StatusApproved {
			s.jsonError(w, "account not approved", http.StatusForbidden)
			return
		}
		claims.Role = string(account.Role)
		claims.UserID = account.ID

		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// withAdmin requires an approved account with the admin role.
func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.withUser(func(w http.ResponseWriter, r *http.Request) {
		if claims := claimsFrom(r); claims == nil || claims.Role != string(catalog.RoleAdmin) {
			s.jsonError(w, "admin role required", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ok, last := s.reconciler.Healthy()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       s.version,
		ReconcilerOK:  ok,
		LastReconcile: last,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// writeDomainError maps a catalog error onto its HTTP status.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, catalog.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, catalog.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, catalog.ErrRemoteUnavailable):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
	}
	s.jsonError(w, err.Error(), code)
}
