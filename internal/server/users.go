package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shareport/shareport/internal/auth"
	"github.com/shareport/shareport/internal/catalog"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		s.jsonError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.jsonError(w, "failed to hash password", http.StatusInternalServerError)
		return
	}
	account, err := s.facade.Register(r.Context(), req.Username, hash)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := s.facade.GetAccountByUsername(req.Username)
	if err != nil || !auth.CheckPassword(account.Password, req.Password) {
		// One message for both unknown username and bad password.
		s.jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if account.Status != catalog.StatusApproved {
		s.jsonError(w, "account not approved", http.StatusForbidden)
		return
	}

	token, err := s.tokens.Issue(account.ID, account.Username, string(account.Role))
	if err != nil {
		s.jsonError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		Username: account.Username,
		Role:     string(account.Role),
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accounts := s.facade.ListAccounts()
	if r.URL.Query().Get("status") == string(catalog.StatusPending) {
		accounts = s.facade.PendingAccounts()
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleUserByID dispatches /api/v1/admin/users/{id} and
// /api/v1/admin/users/{id}/{action}.
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/admin/users/")
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		s.jsonError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	actor := claimsFrom(r).Username

	if r.Method == http.MethodDelete && action == "" {
		if err := s.facade.DeleteAccount(r.Context(), id, actor); err != nil {
			s.writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var account catalog.Account
	switch action {
	case "approve":
		account, err = s.facade.ApproveUser(r.Context(), id, actor)
	case "reject":
		account, err = s.facade.RejectUser(r.Context(), id, actor)
	case "promote":
		account, err = s.facade.GrantAdmin(r.Context(), id, actor)
	case "demote":
		account, err = s.facade.RevokeAdmin(r.Context(), id, actor)
	default:
		s.jsonError(w, "unknown action", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := s.facade.PurgeAll(r.Context(), claimsFrom(r).Username)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, purgeResponse{Purged: n})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, err := s.reconciler.Run(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reconcileResponse{
		Scanned:  result.Scanned,
		Added:    result.Added,
		Retired:  result.Retired,
		Duration: result.Duration.String(),
	})
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.audit.Snapshot())
}
