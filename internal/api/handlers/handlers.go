// Package handlers implements the HTTP handlers for the UL builder gateway.
// Every mutating build route responds with the refreshed build view, the
// same projection the UI polls for, so a caller never needs a follow-up
// read to learn what its own action changed.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shirisha-ilura/UL/internal/build"
	"github.com/shirisha-ilura/UL/internal/sessions"
	"github.com/shirisha-ilura/UL/pkg/contracts"
	"github.com/shirisha-ilura/UL/pkg/middleware"
	"github.com/shirisha-ilura/UL/pkg/models"
)

// maxUploadBytes caps in-memory buffering of build file uploads before
// the multipart reader spills to disk.
const maxUploadBytes = 32 << 20

// Handlers holds all handler dependencies.
type Handlers struct {
	Manager   *build.Manager
	Architect contracts.ArchitectService
	Sessions  *sessions.MemorySessionStore
}

// New creates a new Handlers instance with all dependencies.
func New(m *build.Manager, arch contracts.ArchitectService, sess *sessions.MemorySessionStore) *Handlers {
	return &Handlers{
		Manager:   m,
		Architect: arch,
		Sessions:  sess,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Build Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type startBuildRequest struct {
	Prompt    string `json:"prompt"`
	UserEmail string `json:"user_email,omitempty"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// StartBuild opens a session-backed build from an initiating prompt.
func (h *Handlers) StartBuild(w http.ResponseWriter, r *http.Request) {
	var req startBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.Manager.StartBuild(r.Context(), h.userEmail(r, req.UserEmail), req.Prompt)
	if err != nil {
		respondBuildError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// ListBuilds returns the caller's build registry entries.
func (h *Handlers) ListBuilds(w http.ResponseWriter, r *http.Request) {
	builds, err := h.Manager.List(r.Context(), middleware.GetUserEmail(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if builds == nil {
		builds = []models.BuildSummary{}
	}
	respondJSON(w, http.StatusOK, builds)
}

// GetBuild returns the current view of one build. This is the UI's
// polling target.
func (h *Handlers) GetBuild(w http.ResponseWriter, r *http.Request) {
	view, err := h.Manager.View(r.Context(), chi.URLParam(r, "buildID"))
	if err != nil {
		respondBuildError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// SendMessage forwards one user turn into the negotiation. The
// orchestrator routes it to a pending clarification question or to the
// build session, whichever is active.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.Manager.Send(r.Context(), chi.URLParam(r, "buildID"), req.Message)
	if err != nil {
		respondBuildError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// SubmitCredentials accepts database connection details for a build
// whose configuration requires them.
func (h *Handlers) SubmitCredentials(w http.ResponseWriter, r *http.Request) {
	var cc models.ConnectionConfig
	if err := json.NewDecoder(r.Body).Decode(&cc); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.Manager.SubmitCredentials(r.Context(), chi.URLParam(r, "buildID"), cc)
	if err != nil {
		respondBuildError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ApproveBuild records the user's go-ahead on a finalized configuration
// and starts the build progress run.
func (h *Handlers) ApproveBuild(w http.ResponseWriter, r *http.Request) {
	view, err := h.Manager.Approve(r.Context(), chi.URLParam(r, "buildID"))
	if err != nil {
		respondBuildError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// UploadBuildFile attaches one artifact to the build session. Expects a
// multipart form with a single "file" field.
func (h *Handlers) UploadBuildFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "A single 'file' field is required")
		return
	}
	defer file.Close()

	view, err := h.Manager.Upload(r.Context(), chi.URLParam(r, "buildID"), header.Filename, file)
	if err != nil {
		respondBuildError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// DeleteBuild discards a build. Responses still in flight for it are
// dropped by the closed session.
func (h *Handlers) DeleteBuild(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.Delete(r.Context(), chi.URLParam(r, "buildID")); err != nil {
		var nf *contracts.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════
// ── Agent Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// DirectConfiguration opens a build on the legacy direct path: the
// gateway runs analysis itself and manages clarification locally, with
// no server-side session behind it. The response is the same build view
// as the session path, carrying either a proposed configuration or the
// first clarifying question.
func (h *Handlers) DirectConfiguration(w http.ResponseWriter, r *http.Request) {
	var req startBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.Manager.StartDirect(r.Context(), h.userEmail(r, req.UserEmail), req.Prompt)
	if err != nil {
		respondBuildError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

type chatTurnRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

type chatTurnResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// ChatWithAgent relays one turn of a test conversation with a persisted
// agent. A missing session_id starts a new session; the reply always
// names the session so the UI can continue it.
func (h *Handlers) ChatWithAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req chatTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "Message is required")
		return
	}
	userEmail := h.userEmail(r, req.UserEmail)

	session, err := h.chatSession(r, agentID, req.SessionID, userEmail)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.Sessions.AppendMessage(r.Context(), session.ID, models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   req.Message,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	reply, err := h.Architect.Chat(r.Context(), agentID, contracts.ChatRequest{
		SessionID: session.ID,
		UserEmail: userEmail,
		Message:   req.Message,
	})
	if err != nil {
		log.Error().Err(err).Str("agent", agentID).Msg("Agent chat relay failed")
		respondError(w, http.StatusBadGateway, "The agent could not be reached")
		return
	}

	if err := h.Sessions.AppendMessage(r.Context(), session.ID, models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleAgent,
		Content:   reply.Response,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, chatTurnResponse{
		Response:  reply.Response,
		SessionID: session.ID,
	})
}

// GetChatSession returns the transcript of one test conversation.
func (h *Handlers) GetChatSession(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	session, err := h.Sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil || session.AgentID != agentID {
		respondError(w, http.StatusNotFound, "Chat session not found")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// chatSession loads the named session or starts a fresh one for the agent.
func (h *Handlers) chatSession(r *http.Request, agentID, sessionID, userEmail string) (*models.ChatSession, error) {
	if sessionID != "" {
		session, err := h.Sessions.GetSession(r.Context(), sessionID)
		if err != nil {
			return nil, err
		}
		if session.AgentID != agentID {
			return nil, errors.New("chat session belongs to another agent")
		}
		return session, nil
	}

	session := &models.ChatSession{
		AgentID:   agentID,
		UserEmail: userEmail,
	}
	if err := h.Sessions.CreateSession(r.Context(), session); err != nil {
		return nil, err
	}
	log.Info().Str("agent", agentID).Str("session", session.ID).Msg("Chat session started")
	return session, nil
}

// userEmail resolves the acting user: an explicit body value wins over
// the identity the middleware put in context.
func (h *Handlers) userEmail(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return middleware.GetUserEmail(r.Context())
}

// ══════════════════════════════════════════════════════════════
// ── Responses ─────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// respondBuildError translates orchestrator and transport errors into
// the gateway's HTTP contract: 404 unknown build, 409 busy or
// out-of-phase input, 410 failed session, 400 rejected input, 502 for
// anything the Architect Service boundary produced.
func respondBuildError(w http.ResponseWriter, err error) {
	var nf *contracts.ErrNotFound
	switch {
	case errors.As(err, &nf):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, build.ErrBusy), errors.Is(err, build.ErrNotFinalized), errors.Is(err, build.ErrNoCredentialPrompt):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, build.ErrSessionFailed):
		respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, build.ErrEmptyInput), errors.Is(err, build.ErrIncompleteCredentials), errors.Is(err, build.ErrUploadUnsupported):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		// Anything else crossed the Architect Service boundary; the
		// error text carries the upstream status when there was one.
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
