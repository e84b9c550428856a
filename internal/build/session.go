// Package build orchestrates agent-building negotiations between the
// visual builder UI and the Architect Service.
//
// Each Session mirrors one server-owned build negotiation: it relays
// user input, swallows each returned snapshot wholesale, and projects
// the result into the BuildView the UI polls. The server decides the
// next screen; the session's job is applying snapshots without ever
// merging two of them, keeping the transcript duplicate-free, gating
// persistence on prerequisites, and running the cosmetic provisioning
// progress once the user approves.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shirisha-ilura/UL/internal/architect"
	"github.com/shirisha-ilura/UL/internal/catalog"
	"github.com/shirisha-ilura/UL/internal/graph"
	"github.com/shirisha-ilura/UL/internal/progress"
	"github.com/shirisha-ilura/UL/pkg/contracts"
	"github.com/shirisha-ilura/UL/pkg/models"
)

// ── Errors ──────────────────────────────────────────────────

var (
	// ErrBusy rejects input while a round-trip is outstanding or the
	// architect is still thinking. Inputs are serialized by construction.
	ErrBusy = errors.New("build session is busy")

	// ErrSessionFailed rejects input once the server has declared the
	// session failed. A new build must be started.
	ErrSessionFailed = errors.New("build session has failed")

	// ErrNotFinalized rejects approval before a configuration exists.
	ErrNotFinalized = errors.New("configuration is not finalized")

	// ErrNoCredentialPrompt rejects credentials nobody asked for.
	ErrNoCredentialPrompt = errors.New("no credential request is pending")

	// ErrIncompleteCredentials rejects connection details with missing fields.
	ErrIncompleteCredentials = errors.New("connection details are incomplete")

	// ErrUploadUnsupported rejects uploads on the direct configuration
	// path, which has no server-side session to attach files to.
	ErrUploadUnsupported = errors.New("file upload requires a build session")

	// ErrEmptyInput rejects blank messages.
	ErrEmptyInput = errors.New("message is empty")
)

// ── Session ─────────────────────────────────────────────────

// Session drives one build negotiation. All mutation happens under mu;
// HTTP round-trips run with the lock released and re-acquire it to
// apply the response. Responses arriving after Close are discarded.
type Session struct {
	mu sync.Mutex

	client   contracts.ArchitectService
	registry *catalog.Registry
	graphs   *graph.Builder
	sim      *progress.Simulator

	id        string
	userEmail string
	prompt    string
	direct    bool // legacy direct-configuration path: Analyze instead of session calls

	// Latest server snapshot, replaced wholesale on every response.
	snap *models.BuildSession

	transcript []models.ChatMessage

	started  bool // creation ran; a session is created at most once
	thinking bool // architect is working; inputs rejected while set
	inFlight bool // an HTTP round-trip is outstanding
	closed   bool

	// Clarification sub-flow, direct path only. Nil when inactive.
	round *clarificationRound

	// Credential gate.
	modalOpen           bool
	modalNotice         string
	credentialsProvided bool
	pendingCredentials  bool // a connection string is on the wire
	connString          string

	// Configuration and persistence.
	config       *models.AgentConfiguration
	archRevealed bool
	agentSaved   bool // the one create-agent call has been issued
	agentID      string

	failure string // terminal failure banner; non-empty means dead session
	alert   string // transient transport alert, cleared on next success

	terminalFired bool

	createdAt time.Time
	updatedAt time.Time

	// Callbacks for integration with the build registry and
	// notifications. Set before the session starts; called without the
	// session lock held.
	OnTerminal       func(rec models.BuildRecord)
	OnAgentPersisted func(agentID string)
	OnUpdate         func()
}

// newSession wires a session but does not contact the server; call
// start for that.
func newSession(client contracts.ArchitectService, registry *catalog.Registry, sim *progress.Simulator, userEmail, prompt string, direct bool) *Session {
	s := &Session{
		client:    client,
		registry:  registry,
		graphs:    graph.New(registry),
		sim:       sim,
		userEmail: userEmail,
		prompt:    strings.TrimSpace(prompt),
		direct:    direct,
		createdAt: time.Now().UTC(),
	}
	s.updatedAt = s.createdAt
	if direct {
		s.id = newMessageID()
	}
	sim.OnComplete = func() {
		s.mu.Lock()
		s.announceCompletion()
		s.mu.Unlock()
		s.notifyUpdate()
	}
	return s
}

// start issues the session's one creation call. On the session path the
// server assigns the ID; the direct path runs the first analysis.
func (s *Session) start(ctx context.Context) error {
	if s.prompt == "" {
		return ErrEmptyInput
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.appendUser(s.prompt)

	if s.direct {
		return s.analyze(ctx, s.prompt) // releases the lock
	}

	s.thinking = true
	s.inFlight = true
	s.mu.Unlock()

	snap, err := s.client.StartBuild(ctx, s.prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		s.thinking = false
		return err
	}
	if snap.ID == "" {
		s.thinking = false
		return fmt.Errorf("architect returned a session without an id")
	}
	s.id = snap.ID
	s.apply(snap)
	return nil
}

// ── User Operations ─────────────────────────────────────────

// Send relays one user chat message. On the session path it continues
// the server negotiation; on the direct path it answers the pending
// clarification question or requests a fresh analysis.
func (s *Session) Send(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyInput
	}

	s.mu.Lock()
	if err := s.acceptInput(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.appendUser(message)

	if s.direct {
		return s.sendDirect(ctx, message) // releases the lock
	}

	s.thinking = true
	s.inFlight = true
	s.mu.Unlock()

	snap, err := s.client.Continue(ctx, s.id, contracts.ContinueInputs{Message: message})
	return s.finishRoundTrip(snap, err)
}

// SubmitCredentials closes the credential modal and hands the typed
// values to the server as a single connection string. The values
// themselves are never stored.
func (s *Session) SubmitCredentials(ctx context.Context, cc models.ConnectionConfig) error {
	s.mu.Lock()
	if err := s.acceptInput(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.modalOpen {
		s.mu.Unlock()
		return ErrNoCredentialPrompt
	}
	if !cc.Complete() {
		s.mu.Unlock()
		return ErrIncompleteCredentials
	}

	conn := architect.BuildConnectionString(cc)
	s.modalOpen = false
	s.modalNotice = ""

	if s.direct {
		// No server session to relay through: satisfy the gate locally
		// and let the connection string ride along with the save.
		s.credentialsProvided = true
		s.connString = conn
		s.maybePersistAgent()
		s.updatedAt = time.Now().UTC()
		s.mu.Unlock()
		return nil
	}

	s.pendingCredentials = true
	s.thinking = true
	s.inFlight = true
	s.mu.Unlock()

	snap, err := s.client.Continue(ctx, s.id, contracts.ContinueInputs{ConnectionString: conn})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.closed {
		return nil
	}
	if err != nil {
		// Transport failure, not a rejected connection: re-present the
		// form exactly as it was.
		s.thinking = false
		s.pendingCredentials = false
		s.modalOpen = true
		s.alert = "The architect service could not be reached. Try submitting again."
		s.updatedAt = time.Now().UTC()
		log.Error().Err(err).Str("build", s.id).Msg("credential submission failed in transport")
		return err
	}
	s.alert = ""
	s.apply(snap)
	return nil
}

// Approve starts the cosmetic provisioning progress. Only valid once a
// configuration has been finalized.
func (s *Session) Approve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.failure != "" {
		return ErrSessionFailed
	}
	state := s.state()
	if state != models.StateConfigFinalized && state != models.StateCompleted {
		return ErrNotFinalized
	}
	if s.config == nil {
		return ErrNotFinalized
	}
	s.sim.Start(buildSteps(s.config, s.registry))
	s.updatedAt = time.Now().UTC()
	return nil
}

// Upload attaches an artifact to the build session.
func (s *Session) Upload(ctx context.Context, filename string, r io.Reader) error {
	s.mu.Lock()
	if s.direct {
		s.mu.Unlock()
		return ErrUploadUnsupported
	}
	if err := s.acceptInput(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.thinking = true
	s.inFlight = true
	s.mu.Unlock()

	snap, err := s.client.UploadFile(ctx, s.id, filename, r)
	return s.finishRoundTrip(snap, err)
}

// Close stops background work and marks late responses for discard.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.sim.Stop()
}

// ── Projections ─────────────────────────────────────────────

// ID returns the build identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// View projects the session for the polling UI.
func (s *Session) View() models.BuildView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// Record projects the session into its registry row.
func (s *Session) Record() models.BuildRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record()
}

func (s *Session) view() models.BuildView {
	v := models.BuildView{
		ID:         s.id,
		State:      s.state(),
		Thinking:   s.thinking || s.inFlight,
		Transcript: append([]models.ChatMessage(nil), s.transcript...),
		Credentials: models.CredentialPrompt{
			Open:   s.modalOpen,
			Notice: s.modalNotice,
		},
		Progress:  s.sim.View(),
		AgentID:   s.agentID,
		Failure:   s.failure,
		Alert:     s.alert,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.round != nil {
		v.PendingQuestion = s.round.current()
	}
	if s.archRevealed && s.config != nil {
		v.Config = s.config
		g := s.graphs.FromConfig(s.config)
		v.Graph = &g
	}
	return v
}

func (s *Session) record() models.BuildRecord {
	rec := models.BuildRecord{
		ID:         s.id,
		UserEmail:  s.userEmail,
		Prompt:     s.prompt,
		State:      s.state(),
		AgentID:    s.agentID,
		Transcript: append([]models.ChatMessage(nil), s.transcript...),
		Failure:    s.failure,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if s.archRevealed {
		rec.Config = s.config
	}
	return rec
}

func (s *Session) state() models.SessionState {
	if s.snap == nil {
		return models.StateInitiated
	}
	return s.snap.State
}

// acceptInput reports whether the session can take user input right now.
func (s *Session) acceptInput() error {
	if s.closed || s.failure != "" {
		return ErrSessionFailed
	}
	if s.thinking || s.inFlight {
		return ErrBusy
	}
	return nil
}

// ── Snapshot Application ────────────────────────────────────

// finishRoundTrip re-acquires the lock after a server call and either
// applies the replacement snapshot or surfaces the transport failure,
// leaving prior state intact.
func (s *Session) finishRoundTrip(snap *models.BuildSession, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.closed {
		return nil
	}
	if err != nil {
		s.thinking = false
		s.alert = "The architect service could not be reached. Your message was kept; try again."
		s.updatedAt = time.Now().UTC()
		log.Error().Err(err).Str("build", s.id).Msg("build continuation failed in transport")
		return err
	}
	s.alert = ""
	s.apply(snap)
	return nil
}

// apply replaces the stored snapshot and runs the reaction pipeline:
// transcript merge, pending-credential resolution, UI directives, then
// state side effects. Caller holds the lock.
func (s *Session) apply(snap *models.BuildSession) {
	if snap == nil {
		return
	}
	prev := s.state()
	s.snap = snap
	s.updatedAt = time.Now().UTC()

	// 1. Newest server message not yet in the transcript, by content.
	if msg := snap.LatestMessageToUser(); msg != "" {
		s.appendAgent(msg)
	}

	// 2. Resolve an in-flight credential attempt before dispatching:
	// any response other than a connection failure means the server
	// accepted the connection string.
	if s.pendingCredentials {
		s.pendingCredentials = false
		s.credentialsProvided = snap.State != models.StateDBConnectionFailed
	}

	// 3. Out-of-band UI directives.
	s.dispatchUIRequest(snap.UIRequest)

	// 4. State side effects.
	if prev != "" && !models.ExpectedTransition(prev, snap.State) {
		log.Debug().
			Str("build", s.id).
			Str("from", string(prev)).
			Str("to", string(snap.State)).
			Msg("state transition outside the usual table")
	}
	s.dispatchState(snap)
}

// dispatchUIRequest triggers the side effect a directive names, at most
// once per occurrence: re-delivery while the modal is open is a no-op.
func (s *Session) dispatchUIRequest(req *models.UIRequest) {
	if req == nil {
		return
	}
	switch req.Type {
	case models.UIRequestDBCredentials:
		if !s.modalOpen {
			s.modalOpen = true
			log.Debug().Str("build", s.id).Msg("credential modal opened by ui request")
		}
	default:
		log.Warn().Str("build", s.id).Str("type", string(req.Type)).Msg("unhandled ui request")
	}
}

// dispatchState runs the per-state side effects for a fresh snapshot.
func (s *Session) dispatchState(snap *models.BuildSession) {
	switch snap.State {
	case models.StateInitiated:
		// Server is still working on the prompt; stay in thinking.

	case models.StateWaitingForUserInput, models.StateConfigProposed:
		s.thinking = false

	case models.StateConfigFinalized:
		s.thinking = false
		if snap.AgentConfig != nil {
			s.config = snap.AgentConfig
		}
		s.archRevealed = true
		s.sim.Reset()
		if s.config.NeedsDatabaseCredentials() && !s.credentialsProvided && !s.modalOpen {
			s.modalOpen = true
		}
		s.maybePersistAgent()

	case models.StateCompleted:
		s.thinking = false
		s.modalOpen = false
		if snap.AgentConfig != nil {
			s.config = snap.AgentConfig
		}
		s.archRevealed = true
		if s.config != nil && s.config.ID != "" {
			// Server already persisted the agent; capture the identity
			// and retire the local save.
			s.agentID = s.config.ID
			s.agentSaved = true
		} else {
			s.maybePersistAgent()
		}
		s.sim.Reset()
		s.fireTerminal()

	case models.StateFailed:
		s.thinking = false
		s.failure = failureMessage(snap)
		s.sim.Stop()
		s.fireTerminal()

	case models.StateRequestDBCreds:
		s.thinking = false
		if !s.modalOpen {
			s.modalOpen = true
		}

	case models.StateDBConnectionFailed:
		s.thinking = false
		s.credentialsProvided = false
		s.modalOpen = true
		s.modalNotice = connectionFailureNotice(snap)

	default:
		log.Warn().Str("build", s.id).Str("state", string(snap.State)).Msg("unhandled build session state")
	}
}

// ── Agent Persistence ───────────────────────────────────────

// maybePersistAgent issues the session's single create-agent call if
// the configuration is present and the credential gate is satisfied.
// Caller holds the lock.
func (s *Session) maybePersistAgent() {
	if s.agentSaved || s.config == nil {
		return
	}
	if s.config.NeedsDatabaseCredentials() && !s.credentialsProvided {
		log.Debug().Str("build", s.id).Msg("agent save deferred until database credentials are provided")
		return
	}
	s.agentSaved = true
	req := contracts.CreateAgentRequest{
		UserEmail:        s.userEmail,
		Name:             s.config.Name,
		SystemPrompt:     s.config.SystemPrompt,
		Configuration:    s.config,
		ConnectionString: s.connString,
	}
	go s.persistAgent(req)
}

// persistAgent runs the one create-agent call. Fire and forget: a
// failure raises an alert and is never retried.
func (s *Session) persistAgent(req contracts.CreateAgentRequest) {
	resp, err := s.client.CreateAgent(context.Background(), req)

	s.mu.Lock()
	if err != nil {
		s.alert = "Saving the agent failed. The conversation is intact, but the agent was not stored."
		s.updatedAt = time.Now().UTC()
		s.mu.Unlock()
		log.Error().Err(err).Str("build", s.id).Msg("create agent call failed")
		s.notifyUpdate()
		return
	}
	s.agentID = resp.ID
	s.updatedAt = time.Now().UTC()
	cb := s.OnAgentPersisted
	s.mu.Unlock()

	log.Info().Str("build", s.id).Str("agent", resp.ID).Msg("agent configuration persisted")
	if cb != nil {
		cb(resp.ID)
	}
	s.notifyUpdate()
}

// fireTerminal invokes OnTerminal the first time the session reaches a
// terminal state. Caller holds the lock.
func (s *Session) fireTerminal() {
	if s.terminalFired {
		return
	}
	s.terminalFired = true
	if s.OnTerminal == nil {
		return
	}
	rec := s.record()
	cb := s.OnTerminal
	go cb(rec)
}

func (s *Session) notifyUpdate() {
	if s.OnUpdate != nil {
		s.OnUpdate()
	}
}
