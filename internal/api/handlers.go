// Package api exposes the interview engine over HTTP and MCP. The REST
// surface serves the candidate-facing chat flow and the interviewer
// dashboard; MCP serves the same dashboard reads to agent tooling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crispai/crisp/internal/interview"
	"github.com/crispai/crisp/internal/resume"
	"github.com/crispai/crisp/internal/session"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxResumeUploadSize = 10 << 20 // 10MB

// Engine is the slice of the orchestrator the HTTP layer drives.
type Engine interface {
	CreateSession(name, email, phone, role string) (session.Session, error)
	StartInterview(ctx context.Context, sessionID string) error
	SubmitAnswer(ctx context.Context, sessionID, answer string) error
	HandleChatTurn(ctx context.Context, sessionID, message string, resumeMeta *session.ResumeMetadata) error
}

// Persister writes a session's state through to durable storage. A nil
// Persister disables write-through.
type Persister interface {
	PersistSession(st *session.Store, sessionID string) error
	DeleteThread(sessionID string) error
}

// Deps holds dependencies for the REST handler.
type Deps struct {
	Store   *session.Store
	Engine  Engine
	Archive Persister // optional
	Token   string    // optional; empty disables bearer auth
}

// NewHandler returns the REST API handler.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/sessions", handleCreateSession(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/sessions/{id}", handleGetSession(deps))
		r.Post("/sessions/{id}/start", handleStart(deps))
		r.Post("/sessions/{id}/answer", handleAnswer(deps))
		r.Post("/sessions/{id}/chat", handleChat(deps))
		r.Post("/sessions/{id}/resume", handleResumeUpload(deps))
		r.Get("/sessions/{id}/transcript", handleGetTranscript(deps))
		r.Delete("/sessions/{id}/transcript", handleDeleteTranscript(deps))
		r.Get("/candidates", handleListCandidates(deps))
		r.Get("/candidates/{id}", handleGetCandidate(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
			Role  string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		sess, err := deps.Engine.CreateSession(req.Name, req.Email, req.Phone, req.Role)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating session: %v", err)
			return
		}
		persist(deps, sess.ID)

		writeJSON(w, http.StatusCreated, sessionView(deps.Store, sess))
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := deps.Store.Sessions()
		views := make([]sessionJSON, 0, len(sessions))
		for _, sess := range sessions {
			views = append(views, sessionView(deps.Store, sess))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Store.Session(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(deps.Store, sess))
	}
}

func handleStart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Engine.StartInterview(r.Context(), id)
		persist(deps, id)
		if err != nil {
			writeError(w, err)
			return
		}
		sess, err := deps.Store.Session(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(deps.Store, sess))
	}
}

func handleAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Answer string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		id := chi.URLParam(r, "id")
		err := deps.Engine.SubmitAnswer(r.Context(), id, req.Answer)
		persist(deps, id)
		if err != nil {
			writeError(w, err)
			return
		}
		sess, err := deps.Store.Session(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(deps.Store, sess))
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		id := chi.URLParam(r, "id")
		err := deps.Engine.HandleChatTurn(r.Context(), id, req.Message, nil)
		persist(deps, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transcriptView(deps.Store.Thread(id)))
	}
}

// handleResumeUpload accepts a multipart resume file, parses it, and feeds
// the result through the chat intake path.
func handleResumeUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxResumeUploadSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		text, err := resume.Parse(header.Filename, data)
		if err != nil {
			writeError(w, err)
			return
		}

		meta := &session.ResumeMetadata{
			FileName:   header.Filename,
			FileType:   header.Header.Get("Content-Type"),
			Size:       int64(len(data)),
			UploadedAt: time.Now().UTC(),
			ParsedText: text,
		}

		id := chi.URLParam(r, "id")
		err = deps.Engine.HandleChatTurn(r.Context(), id, "", meta)
		persist(deps, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transcriptView(deps.Store.Thread(id)))
	}
}

func handleGetTranscript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.Session(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transcriptView(deps.Store.Thread(id)))
	}
}

func handleDeleteTranscript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.Session(id); err != nil {
			writeError(w, err)
			return
		}
		deps.Store.ClearThread(id)
		if deps.Archive != nil {
			if err := deps.Archive.DeleteThread(id); err != nil {
				slog.Error("deleting archived transcript failed", "session_id", id, "error", err)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListCandidates(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		candidates := deps.Store.Candidates()
		views := make([]candidateJSON, 0, len(candidates))
		for _, c := range candidates {
			views = append(views, candidateView(c))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetCandidate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Store.Candidate(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, candidateView(c))
	}
}

// persist writes the session through to the archive, logging failures. The
// in-memory store stays authoritative; a failed write-through must not fail
// the request.
func persist(deps Deps, sessionID string) {
	if deps.Archive == nil {
		return
	}
	if err := deps.Archive.PersistSession(deps.Store, sessionID); err != nil {
		slog.Error("persisting session failed", "session_id", sessionID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, interview.ErrNoActiveQuestion):
		httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
	case errors.Is(err, session.ErrActiveQuestionExists):
		httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
	case errors.Is(err, resume.ErrUnsupportedFormat):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
