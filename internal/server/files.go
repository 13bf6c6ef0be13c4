package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/shareport/shareport/internal/catalog"
)

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListFiles(w, r)
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, _ *http.Request) {
	entries := s.facade.ListFiles()
	out := make([]fileResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toFileResponse(e))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.jsonError(w, "multipart field \"file\" is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	spec, err := uploadSpecFrom(header, claims.Username)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.facade.CreateFile(r.Context(), spec, file)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toFileResponse(entry))
}

// handleFileByID dispatches /api/v1/files/{id} and /api/v1/files/{id}/download.
func (s *Server) handleFileByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/files/")
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		s.jsonError(w, "invalid file id", http.StatusBadRequest)
		return
	}

	switch {
	case action == "download" && r.Method == http.MethodGet:
		s.handleDownload(w, r, id)
	case action == "" && r.Method == http.MethodGet:
		entry, err := s.facade.GetFile(id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, toFileResponse(entry))
	case action == "" && r.Method == http.MethodPut:
		s.handleRename(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleDelete(w, r, id)
	default:
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, id int64) {
	rc, entry, err := s.facade.OpenFile(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.DisplayName))
	if entry.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(entry.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; all we can do is log the broken transfer.
		s.logger.Warn().Err(err).Int64("file_id", id).Msg("Download aborted mid-stream")
	}
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request, id int64) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, warning, err := s.facade.RenameFile(r.Context(), id, req.Name, claimsFrom(r).Username)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renameResponse{fileResponse: toFileResponse(entry), Warning: warning})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.facade.DeleteFile(r.Context(), id, claimsFrom(r).Username); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadSpecFrom builds the upload spec from the multipart header.
func uploadSpecFrom(header *multipart.FileHeader, uploader string) (spec catalog.UploadSpec, err error) {
	name := strings.TrimSpace(header.Filename)
	if name == "" {
		return spec, fmt.Errorf("uploaded file has no name")
	}
	spec.Name = name
	spec.Size = header.Size
	spec.ContentType = header.Header.Get("Content-Type")
	spec.UploadedBy = uploader
	return spec, nil
}
