package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pairlink/core/errors"
	"github.com/pairlink/core/internal/orchestrator"
	"github.com/pairlink/core/internal/registry"
)

// handleCreateQR starts a QR-mode session. The response carries the
// rendered challenge; the request blocks until one is available.
func (s *Server) handleCreateQR(w http.ResponseWriter, r *http.Request) {
	result, err := s.orch.CreateQR(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type pairRequest struct {
	Phone string `json:"phone"`
}

// handleCreatePairing starts a pairing-mode session and responds with
// the code the user types on their phone.
func (s *Server) handleCreatePairing(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := s.orch.CreatePairing(r.Context(), req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// sessionList is the /api/sessions response: the persisted records plus
// the live view of sessions still being established.
type sessionList struct {
	Sessions []*registry.Session       `json:"sessions"`
	Active   []orchestrator.ActiveInfo `json:"active"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := s.reg.All()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionList{
		Sessions: records,
		Active:   s.orch.ActiveSessions(),
	})
}

// sessionDetail augments the registry record with live credential facts.
type sessionDetail struct {
	*registry.Session
	CredentialsValid bool       `json:"credentials_valid"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.reg.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	detail := sessionDetail{
		Session:          rec,
		CredentialsValid: s.creds.Valid(id),
	}
	if detail.Identity == "" {
		// Records written before the identity was known; the durable
		// credential file is authoritative.
		if identity, err := s.creds.Identity(id); err == nil {
			detail.Identity = identity
		}
	}
	if mtime, err := s.creds.ModTime(id); err == nil {
		detail.LastActivity = &mtime
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	force := r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true"
	if force && !s.authorized(r) {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "forced removal requires the access token"))
		return
	}

	result, err := s.orch.Stop(id, force)
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.WithField("session", id).Info("Session removed via API")
	writeJSON(w, http.StatusOK, map[string]string{"result": string(result)})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	id := r.PathValue("id")

	if !s.creds.Exists(id) {
		writeError(w, errors.SessionNotFound(id))
		return
	}

	files, err := s.creds.Files(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	id := r.PathValue("id")
	name := r.PathValue("name")

	data, err := s.creds.ReadFile(id, name)
	if err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeNotFound, "credential file not found"))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// handleArchive streams the session's credential directory as a zip,
// for backup before a forced removal.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	id := r.PathValue("id")

	if !s.creds.Exists(id) {
		writeError(w, errors.SessionNotFound(id))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".zip"))
	if err := s.creds.Archive(id, w); err != nil {
		s.logger.WithError(err).WithField("session", id).Error("Archive failed")
	}
}
