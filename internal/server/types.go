package server

import (
	"time"

	"github.com/shareport/shareport/internal/catalog"
	"github.com/shareport/shareport/pkg/bytesize"
)

// errorResponse is the JSON shape of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type renameRequest struct {
	Name string `json:"name"`
}

// fileResponse is the public shape of a catalog entry.
type fileResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	StorageKey  string    `json:"storage_key"`
	Size        int64     `json:"size"`
	SizeHuman   string    `json:"size_human"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
	UploadedBy  string    `json:"uploaded_by"`
}

func toFileResponse(e catalog.CatalogEntry) fileResponse {
	return fileResponse{
		ID:          e.ID,
		Name:        e.DisplayName,
		StorageKey:  e.StorageKey,
		Size:        e.Size,
		SizeHuman:   bytesize.Format(e.Size),
		ContentType: e.ContentType,
		UploadedAt:  e.UploadedAt,
		UploadedBy:  e.UploadedBy,
	}
}

type renameResponse struct {
	fileResponse
	Warning string `json:"warning,omitempty"`
}

// accountResponse is the public shape of an account. The credential hash
// never leaves the catalog.
type accountResponse struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	IsApproved bool   `json:"isApproved"`
}

func toAccountResponse(a catalog.Account) accountResponse {
	return accountResponse{
		ID:         a.ID,
		Username:   a.Username,
		Role:       string(a.Role),
		Status:     string(a.Status),
		IsApproved: a.IsApproved,
	}
}

type purgeResponse struct {
	Purged int `json:"purged"`
}

type reconcileResponse struct {
	Scanned  int    `json:"scanned"`
	Added    int    `json:"added"`
	Retired  int    `json:"retired"`
	Duration string `json:"duration"`
}

type healthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version,omitempty"`
	ReconcilerOK  bool      `json:"reconciler_ok"`
	LastReconcile time.Time `json:"last_reconcile,omitempty"`
}
