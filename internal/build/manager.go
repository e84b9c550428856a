package build

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shirisha-ilura/UL/internal/catalog"
	"github.com/shirisha-ilura/UL/internal/graph"
	"github.com/shirisha-ilura/UL/internal/notify"
	"github.com/shirisha-ilura/UL/internal/progress"
	"github.com/shirisha-ilura/UL/pkg/contracts"
	"github.com/shirisha-ilura/UL/pkg/models"
)

// Manager owns the live build sessions and keeps the build registry in
// sync with them. Finished builds survive as registry records after
// their session is gone; View falls back to the record so old builds
// stay inspectable.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	client   contracts.ArchitectService
	store    contracts.Store
	notifier contracts.Notifier
	registry *catalog.Registry
	graphs   *graph.Builder

	tick         time.Duration
	ticksPerStep int
}

// NewManager assembles a manager. The notifier may be nil when no
// webhook channels are configured.
func NewManager(client contracts.ArchitectService, st contracts.Store, notifier contracts.Notifier, registry *catalog.Registry, tick time.Duration, ticksPerStep int) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		client:       client,
		store:        st,
		notifier:     notifier,
		registry:     registry,
		graphs:       graph.New(registry),
		tick:         tick,
		ticksPerStep: ticksPerStep,
	}
}

// ── Lifecycle ───────────────────────────────────────────────

// StartBuild opens a server-driven build session for the prompt.
func (m *Manager) StartBuild(ctx context.Context, userEmail, prompt string) (models.BuildView, error) {
	return m.start(ctx, userEmail, prompt, false)
}

// StartDirect opens a build on the direct configuration path, where
// the gateway drives analysis itself instead of a server session.
func (m *Manager) StartDirect(ctx context.Context, userEmail, prompt string) (models.BuildView, error) {
	return m.start(ctx, userEmail, prompt, true)
}

func (m *Manager) start(ctx context.Context, userEmail, prompt string, direct bool) (models.BuildView, error) {
	sim := progress.New(m.tick, m.ticksPerStep)
	s := newSession(m.client, m.registry, sim, userEmail, prompt, direct)
	s.OnTerminal = m.handleTerminal
	s.OnAgentPersisted = func(agentID string) { m.handleAgentPersisted(s, agentID) }
	s.OnUpdate = func() { m.persistSession(s) }

	if err := s.start(ctx); err != nil {
		s.Close()
		return models.BuildView{}, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.persistSession(s)

	log.Info().Str("build", s.ID()).Str("user", userEmail).Bool("direct", direct).Msg("build session started")
	return s.View(), nil
}

// Delete closes the live session, if any, and removes the registry record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, live := m.sessions[id]
	if live {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if live {
		s.Close()
	}

	if err := m.store.DeleteBuild(ctx, id); err != nil {
		var nf *contracts.ErrNotFound
		if live && errors.As(err, &nf) {
			return nil
		}
		return err
	}
	return nil
}

// Close shuts down every live session. Registry records stay put.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// ── Session Operations ──────────────────────────────────────

// Send relays one user message into a build.
func (m *Manager) Send(ctx context.Context, id, message string) (models.BuildView, error) {
	s, ok := m.session(id)
	if !ok {
		return models.BuildView{}, &contracts.ErrNotFound{Entity: "build", Key: id}
	}
	err := s.Send(ctx, message)
	m.persistSession(s)
	return s.View(), err
}

// SubmitCredentials answers an open credential request.
func (m *Manager) SubmitCredentials(ctx context.Context, id string, cc models.ConnectionConfig) (models.BuildView, error) {
	s, ok := m.session(id)
	if !ok {
		return models.BuildView{}, &contracts.ErrNotFound{Entity: "build", Key: id}
	}
	err := s.SubmitCredentials(ctx, cc)
	m.persistSession(s)
	return s.View(), err
}

// Approve accepts the finalized configuration and starts the
// provisioning progress.
func (m *Manager) Approve(ctx context.Context, id string) (models.BuildView, error) {
	s, ok := m.session(id)
	if !ok {
		return models.BuildView{}, &contracts.ErrNotFound{Entity: "build", Key: id}
	}
	err := s.Approve()
	m.persistSession(s)
	return s.View(), err
}

// Upload attaches a file to a build.
func (m *Manager) Upload(ctx context.Context, id, filename string, r io.Reader) (models.BuildView, error) {
	s, ok := m.session(id)
	if !ok {
		return models.BuildView{}, &contracts.ErrNotFound{Entity: "build", Key: id}
	}
	err := s.Upload(ctx, filename, r)
	m.persistSession(s)
	return s.View(), err
}

// ── Read Paths ──────────────────────────────────────────────

// View returns the current projection of a build, live or archived.
func (m *Manager) View(ctx context.Context, id string) (models.BuildView, error) {
	if s, ok := m.session(id); ok {
		return s.View(), nil
	}
	rec, err := m.store.GetBuild(ctx, id)
	if err != nil {
		return models.BuildView{}, err
	}
	return m.viewFromRecord(rec), nil
}

// List returns registry summaries, newest first.
func (m *Manager) List(ctx context.Context, userEmail string) ([]models.BuildSummary, error) {
	return m.store.ListBuilds(ctx, userEmail)
}

// viewFromRecord projects an archived build. Everything interactive is
// off: no thinking, no open modal, no running progress.
func (m *Manager) viewFromRecord(rec *models.BuildRecord) models.BuildView {
	v := models.BuildView{
		ID:         rec.ID,
		State:      rec.State,
		Transcript: rec.Transcript,
		Config:     rec.Config,
		AgentID:    rec.AgentID,
		Failure:    rec.Failure,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rec.Config != nil {
		g := m.graphs.FromConfig(rec.Config)
		v.Graph = &g
	}
	return v
}

func (m *Manager) session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ── Registry and Notifications ──────────────────────────────

func (m *Manager) persistSession(s *Session) {
	rec := s.Record()
	m.persist(rec)
}

func (m *Manager) persist(rec models.BuildRecord) {
	if err := m.store.SaveBuild(context.Background(), &rec); err != nil {
		log.Warn().Err(err).Str("build", rec.ID).Msg("failed to save build record")
	}
}

func (m *Manager) handleTerminal(rec models.BuildRecord) {
	m.persist(rec)
	if m.notifier == nil {
		return
	}
	eventType := notify.EventBuildCompleted
	payload := map[string]interface{}{"state": string(rec.State)}
	if rec.State == models.StateFailed {
		eventType = notify.EventBuildFailed
		payload["failure"] = rec.Failure
	}
	m.notifier.Notify(context.Background(), notify.NewEvent(eventType, rec.ID, rec.AgentID, rec.UserEmail, payload))
}

func (m *Manager) handleAgentPersisted(s *Session, agentID string) {
	rec := s.Record()
	m.persist(rec)
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(context.Background(), notify.NewEvent(notify.EventAgentPersisted, rec.ID, agentID, rec.UserEmail, nil))
}
