// Package contracts defines the service interfaces for the UL builder
// gateway.
//
// The Handlers struct in api/handlers depends on these interfaces
// rather than on concrete types, so tests can swap a fake Architect
// Service or store for the real ones in a single line of wiring code.
package contracts

import (
	"context"
	"io"
	"time"

	"github.com/shirisha-ilura/UL/internal/architect"
	"github.com/shirisha-ilura/UL/internal/store"
	"github.com/shirisha-ilura/UL/pkg/models"
)

// Store is a type alias for the internal Store interface.
// Exposed in pkg/ so callers can reference it without importing
// internal/ directly.
type Store = store.Store

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// Wire shapes for the Architect Service boundary, aliased for the same
// reason as Store.
type (
	ContinueInputs      = architect.ContinueInputs
	CreateAgentRequest  = architect.CreateAgentRequest
	CreateAgentResponse = architect.CreateAgentResponse
	ChatRequest         = architect.ChatRequest
	ChatResponse        = architect.ChatResponse
	StatusError         = architect.StatusError
)

// ── Architect Service ───────────────────────────────────────

// ArchitectService is the remote collaborator that runs the
// natural-language negotiation and emits BuildSession snapshots.
// Implementation: internal/architect.Client.
//
// Every call is a single stateless round-trip. Non-2xx responses come
// back as *StatusError and are never retried by callers.
type ArchitectService interface {
	// StartBuild creates a build session from an initiating prompt.
	StartBuild(ctx context.Context, prompt string) (*models.BuildSession, error)

	// Continue advances a session with a user message or a database
	// connection string, returning the replacement snapshot.
	Continue(ctx context.Context, buildID string, inputs architect.ContinueInputs) (*models.BuildSession, error)

	// UploadFile attaches an artifact to a session.
	UploadFile(ctx context.Context, buildID, filename string, r io.Reader) (*models.BuildSession, error)

	// Analyze runs the direct configuration path: one prompt in, an
	// analysis result (configuration or clarifying questions) out.
	Analyze(ctx context.Context, prompt string) (*models.AnalysisResult, error)

	// CreateAgent persists a finalized configuration. Callers own the
	// at-most-once guarantee.
	CreateAgent(ctx context.Context, req architect.CreateAgentRequest) (*architect.CreateAgentResponse, error)

	// Chat relays one turn of a test conversation with a persisted agent.
	Chat(ctx context.Context, agentID string, req architect.ChatRequest) (*architect.ChatResponse, error)

	// Health checks whether the service is reachable.
	Health(ctx context.Context) error
}

// ── Notifier ────────────────────────────────────────────────

// NotificationEvent is the payload delivered to notification channels
// when a build reaches a milestone.
type NotificationEvent struct {
	Type      string                 `json:"type"`
	BuildID   string                 `json:"build_id,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	UserEmail string                 `json:"user_email,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Notifier fans events out to configured channels. Delivery failures
// are logged, never propagated to the caller.
// Implementation: internal/notify.Service.
type Notifier interface {
	Notify(ctx context.Context, event NotificationEvent)
}
