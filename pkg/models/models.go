package models

import (
	"strings"
	"time"
)

// ── Build Session States ─────────────────────────────────────

// SessionState is the lifecycle state of a build session as reported by
// the Architect Service. The service is authoritative: the gateway never
// invents transitions, it only reacts to the state carried by the latest
// snapshot.
type SessionState string

const (
	StateInitiated           SessionState = "INITIATED"
	StateWaitingForUserInput SessionState = "WAITING_FOR_USER_INPUT"
	StateConfigProposed      SessionState = "CONFIGURATION_PROPOSED"
	StateConfigFinalized     SessionState = "CONFIGURATION_FINALIZED"
	StateCompleted           SessionState = "COMPLETED"
	StateRequestDBCreds      SessionState = "REQUEST_DB_CREDENTIALS"
	StateDBConnectionFailed  SessionState = "DB_CONNECTION_FAILED"
	StateFailed              SessionState = "FAILED"
)

// Known reports whether the state is one the gateway understands.
// Unknown states are tolerated (logged and otherwise ignored) so that
// newer Architect Service releases don't break older gateways.
func (s SessionState) Known() bool {
	switch s {
	case StateInitiated, StateWaitingForUserInput, StateConfigProposed,
		StateConfigFinalized, StateCompleted, StateRequestDBCreds,
		StateDBConnectionFailed, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether the session can make no further progress.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// PreFinalized reports whether the session is still negotiating, i.e. no
// configuration has been finalized yet. The credential sub-states count
// as pre-finalized because they can be entered from any negotiating state.
func (s SessionState) PreFinalized() bool {
	switch s {
	case StateInitiated, StateWaitingForUserInput, StateConfigProposed,
		StateRequestDBCreds, StateDBConnectionFailed:
		return true
	}
	return false
}

// validTransitions records the transitions the Architect Service normally
// produces. Used for diagnostics only — a snapshot outside this table is
// still applied (the service is authoritative), it just gets a debug log.
var validTransitions = map[SessionState][]SessionState{
	StateInitiated: {
		StateWaitingForUserInput, StateConfigProposed,
		StateRequestDBCreds, StateFailed,
	},
	StateWaitingForUserInput: {
		StateWaitingForUserInput, StateConfigProposed,
		StateRequestDBCreds, StateFailed,
	},
	StateConfigProposed: {
		StateWaitingForUserInput, StateConfigProposed, StateConfigFinalized,
		StateRequestDBCreds, StateFailed,
	},
	StateConfigFinalized: {
		StateConfigFinalized, StateCompleted, StateRequestDBCreds, StateFailed,
	},
	StateRequestDBCreds: {
		StateRequestDBCreds, StateDBConnectionFailed, StateWaitingForUserInput,
		StateConfigProposed, StateConfigFinalized, StateCompleted, StateFailed,
	},
	StateDBConnectionFailed: {
		StateRequestDBCreds, StateDBConnectionFailed,
		StateConfigFinalized, StateCompleted, StateFailed,
	},
	StateCompleted: {},
	StateFailed:    {},
}

// ExpectedTransition reports whether from→to is a transition the service
// normally produces. Identical states are always expected (snapshots are
// re-delivered wholesale on every continue).
func ExpectedTransition(from, to SessionState) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ── Chat Transcript ──────────────────────────────────────────

// MessageRole identifies who authored a transcript entry.
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleAgent MessageRole = "agent"
)

// ChatMessage is one entry in a build conversation transcript. The
// Architect Service issues no message identifiers, so IDs are minted
// gateway-side and deduplication is content-based.
type ChatMessage struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ── Build Session (wire shape) ───────────────────────────────

// TurnRecord is one turn in a build session's server-held history.
type TurnRecord struct {
	MessageToUser string    `json:"message_to_user,omitempty"`
	Input         string    `json:"input,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// UIRequestType enumerates the side-effect directives a snapshot can carry.
type UIRequestType string

const (
	// UIRequestDBCredentials asks the client to collect database credentials.
	UIRequestDBCredentials UIRequestType = "request_db_credentials"
)

// UIRequest is a one-shot directive embedded in a session snapshot.
// Unknown types are logged and skipped.
type UIRequest struct {
	Type UIRequestType  `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// BuildSession is the Architect Service's snapshot of one build
// negotiation. Snapshots are replaced wholesale on every response —
// the gateway never merges two snapshots field by field.
type BuildSession struct {
	ID             string              `json:"id"`
	State          SessionState        `json:"state"`
	OriginalPrompt string              `json:"original_prompt,omitempty"`
	History        []TurnRecord        `json:"history,omitempty"`
	UIRequest      *UIRequest          `json:"ui_request,omitempty"`
	AgentConfig    *AgentConfiguration `json:"agent_config,omitempty"`
}

// LatestMessageToUser returns the newest non-empty message_to_user in the
// history, or "" when the history carries none.
func (b *BuildSession) LatestMessageToUser() string {
	for i := len(b.History) - 1; i >= 0; i-- {
		if b.History[i].MessageToUser != "" {
			return b.History[i].MessageToUser
		}
	}
	return ""
}

// ── Agent Configuration ──────────────────────────────────────

// Prerequisites lists what must be in place before the configured agent
// can be persisted. Only DatabaseCredentials is enforced gateway-side;
// OAuthProviders and Files are declared for the UI but their satisfaction
// is negotiated by the Architect Service itself.
type Prerequisites struct {
	OAuthProviders      []string `json:"oauth_providers,omitempty"`
	Files               []string `json:"files,omitempty"`
	DatabaseCredentials bool     `json:"database_credentials,omitempty"`
	VectorIndex         string   `json:"vector_index,omitempty"`
}

// AgentConfiguration is the agent blueprint negotiated during a build
// session. ID is set once the Architect Service has persisted the agent.
type AgentConfiguration struct {
	ID              string         `json:"id,omitempty"`
	Name            string         `json:"name"`
	LLMModel        string         `json:"llm_model,omitempty"`
	SystemPrompt    string         `json:"system_prompt,omitempty"`
	ToolsToActivate []string       `json:"tools_to_activate,omitempty"`
	Prerequisites   *Prerequisites `json:"prerequisites,omitempty"`
}

// NeedsDatabaseCredentials reports whether persistence is gated on the
// user supplying database credentials.
func (c *AgentConfiguration) NeedsDatabaseCredentials() bool {
	return c != nil && c.Prerequisites != nil && c.Prerequisites.DatabaseCredentials
}

// Connections returns the OAuth provider connections the configuration
// declares.
func (c *AgentConfiguration) Connections() []string {
	if c == nil || c.Prerequisites == nil {
		return nil
	}
	return c.Prerequisites.OAuthProviders
}

// ── Analysis (direct configuration path) ─────────────────────

// AnalysisResult is the response of the direct architect analysis
// endpoint. It carries either a finished configuration or a demand for
// clarification — never both.
type AnalysisResult struct {
	NeedsClarification bool                `json:"needs_clarification,omitempty"`
	Questions          []string            `json:"questions,omitempty"`
	Configuration      *AgentConfiguration `json:"configuration,omitempty"`
}

// ── Database Connection ──────────────────────────────────────

// ConnectionConfig holds user-typed database credentials. It exists only
// for the lifetime of one connection attempt; the gateway never persists
// it and never dials the database itself.
type ConnectionConfig struct {
	Scheme   string `json:"scheme,omitempty"` // defaults to postgresql
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// Complete reports whether every field needed to build a connection
// string is present.
func (c ConnectionConfig) Complete() bool {
	return strings.TrimSpace(c.Host) != "" &&
		strings.TrimSpace(c.Port) != "" &&
		strings.TrimSpace(c.Username) != "" &&
		strings.TrimSpace(c.Database) != ""
}

// ── Architecture Graph ───────────────────────────────────────

// NodeKind classifies architecture diagram nodes.
type NodeKind string

const (
	NodeReasoning   NodeKind = "reasoning"
	NodeMemory      NodeKind = "memory"
	NodeIntegration NodeKind = "integration"
)

// GraphNode is one node of the agent architecture diagram.
type GraphNode struct {
	ID    string   `json:"id"`
	Kind  NodeKind `json:"kind"`
	Label string   `json:"label"`
}

// GraphEdge connects two nodes by ID.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ArchitectureGraph is a pure projection of a configuration's recognized
// connections. Identical inputs must yield byte-identical graphs.
type ArchitectureGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// ── Build Records & Views ────────────────────────────────────

// BuildRecord is the registry row the gateway keeps per build session.
// Live negotiation internals (clarification cursor, typed credentials)
// are never recorded — only what survives the session.
type BuildRecord struct {
	ID         string              `json:"id"`
	UserEmail  string              `json:"user_email,omitempty"`
	Prompt     string              `json:"prompt"`
	State      SessionState        `json:"state"`
	AgentID    string              `json:"agent_id,omitempty"`
	Config     *AgentConfiguration `json:"config,omitempty"`
	Transcript []ChatMessage       `json:"transcript,omitempty"`
	Failure    string              `json:"failure,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// BuildSummary is the listing shape for the registry endpoint.
type BuildSummary struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	Prompt    string       `json:"prompt"`
	AgentID   string       `json:"agent_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CredentialPrompt describes the credential-collection modal the UI
// should render. Notice carries the failure text after a rejected
// connection attempt; typed values are never echoed back.
type CredentialPrompt struct {
	Open   bool   `json:"open"`
	Notice string `json:"notice,omitempty"`
}

// ProgressView is the cosmetic provisioning progress shown after the
// user approves building the agent. Display-only.
type ProgressView struct {
	Active      bool     `json:"active"`
	Percent     float64  `json:"percent"`
	Done        bool     `json:"done"`
	Steps       []string `json:"steps,omitempty"`
	CurrentStep int      `json:"current_step"`
}

// BuildView is the poll target for the visual builder UI: a pure
// projection of the orchestrator's current state. Polling it is
// idempotent — no directive is ever delivered through it twice.
type BuildView struct {
	ID              string              `json:"id"`
	State           SessionState        `json:"state"`
	Thinking        bool                `json:"thinking"`
	Transcript      []ChatMessage       `json:"transcript"`
	PendingQuestion string              `json:"pending_question,omitempty"`
	Credentials     CredentialPrompt    `json:"credentials"`
	Config          *AgentConfiguration `json:"config,omitempty"`
	Graph           *ArchitectureGraph  `json:"graph,omitempty"`
	Progress        ProgressView        `json:"progress"`
	AgentID         string              `json:"agent_id,omitempty"`
	Failure         string              `json:"failure,omitempty"`
	Alert           string              `json:"alert,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ── Chat Sessions (post-build test chat) ─────────────────────

// ChatSession is a multi-turn conversation with a persisted agent, used
// by the builder UI's "test your agent" pane. Independent of the build
// state machine.
type ChatSession struct {
	ID        string        `json:"id"`
	AgentID   string        `json:"agent_id"`
	UserEmail string        `json:"user_email,omitempty"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
