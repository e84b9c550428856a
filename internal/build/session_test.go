package build_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shirisha-ilura/UL/internal/build"
	"github.com/shirisha-ilura/UL/internal/catalog"
	"github.com/shirisha-ilura/UL/pkg/contracts"
	"github.com/shirisha-ilura/UL/pkg/models"
)

// ── Fakes ───────────────────────────────────────────────────

// fakeArchitect scripts the Architect Service per test and records
// every call so ordering properties can be asserted.
type fakeArchitect struct {
	mu sync.Mutex

	onStart    func(prompt string) (*models.BuildSession, error)
	onContinue func(buildID string, inputs contracts.ContinueInputs) (*models.BuildSession, error)
	onUpload   func(buildID, filename string) (*models.BuildSession, error)
	onAnalyze  func(prompt string) (*models.AnalysisResult, error)
	onCreate   func(req contracts.CreateAgentRequest) (*contracts.CreateAgentResponse, error)

	starts    int
	continues []contracts.ContinueInputs
	uploads   []string
	analyzes  []string
	creates   []contracts.CreateAgentRequest
}

func (f *fakeArchitect) StartBuild(ctx context.Context, prompt string) (*models.BuildSession, error) {
	f.mu.Lock()
	f.starts++
	fn := f.onStart
	f.mu.Unlock()
	if fn != nil {
		return fn(prompt)
	}
	return snapshot("b-1", models.StateWaitingForUserInput, "What should your agent do?"), nil
}

func (f *fakeArchitect) Continue(ctx context.Context, buildID string, inputs contracts.ContinueInputs) (*models.BuildSession, error) {
	f.mu.Lock()
	f.continues = append(f.continues, inputs)
	fn := f.onContinue
	f.mu.Unlock()
	if fn != nil {
		return fn(buildID, inputs)
	}
	return nil, errors.New("fake: continue not scripted")
}

func (f *fakeArchitect) UploadFile(ctx context.Context, buildID, filename string, r io.Reader) (*models.BuildSession, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, filename)
	fn := f.onUpload
	f.mu.Unlock()
	if fn != nil {
		return fn(buildID, filename)
	}
	return nil, errors.New("fake: upload not scripted")
}

func (f *fakeArchitect) Analyze(ctx context.Context, prompt string) (*models.AnalysisResult, error) {
	f.mu.Lock()
	f.analyzes = append(f.analyzes, prompt)
	fn := f.onAnalyze
	f.mu.Unlock()
	if fn != nil {
		return fn(prompt)
	}
	return nil, errors.New("fake: analyze not scripted")
}

func (f *fakeArchitect) CreateAgent(ctx context.Context, req contracts.CreateAgentRequest) (*contracts.CreateAgentResponse, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	fn := f.onCreate
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &contracts.CreateAgentResponse{ID: "agent-1", Name: req.Name}, nil
}

func (f *fakeArchitect) Chat(ctx context.Context, agentID string, req contracts.ChatRequest) (*contracts.ChatResponse, error) {
	return &contracts.ChatResponse{Response: "ok", SessionID: req.SessionID}, nil
}

func (f *fakeArchitect) Health(ctx context.Context) error { return nil }

func (f *fakeArchitect) continueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.continues)
}

func (f *fakeArchitect) lastContinue() contracts.ContinueInputs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.continues[len(f.continues)-1]
}

func (f *fakeArchitect) analyzeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.analyzes)
}

func (f *fakeArchitect) analyzeAt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzes[i]
}

func (f *fakeArchitect) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func (f *fakeArchitect) createAt(i int) contracts.CreateAgentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates[i]
}

// fakeStore is an in-memory contracts.Store for manager tests.
type fakeStore struct {
	mu     sync.Mutex
	builds map[string]models.BuildRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{builds: make(map[string]models.BuildRecord)}
}

func (f *fakeStore) ListBuilds(ctx context.Context, userEmail string) ([]models.BuildSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.BuildSummary{}
	for _, b := range f.builds {
		if userEmail != "" && b.UserEmail != userEmail {
			continue
		}
		out = append(out, models.BuildSummary{
			ID:        b.ID,
			State:     b.State,
			Prompt:    b.Prompt,
			AgentID:   b.AgentID,
			CreatedAt: b.CreatedAt,
			UpdatedAt: b.UpdatedAt,
		})
	}
	return out, nil
}

func (f *fakeStore) GetBuild(ctx context.Context, id string) (*models.BuildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return nil, &contracts.ErrNotFound{Entity: "build", Key: id}
	}
	cp := b
	return &cp, nil
}

func (f *fakeStore) SaveBuild(ctx context.Context, record *models.BuildRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds[record.ID] = *record
	return nil
}

func (f *fakeStore) DeleteBuild(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.builds[id]; !ok {
		return &contracts.ErrNotFound{Entity: "build", Key: id}
	}
	delete(f.builds, id)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

// ── Helpers ─────────────────────────────────────────────────

func snapshot(id string, state models.SessionState, msg string) *models.BuildSession {
	snap := &models.BuildSession{ID: id, State: state}
	if msg != "" {
		snap.History = []models.TurnRecord{{MessageToUser: msg}}
	}
	return snap
}

func plainConfig(name string, conns ...string) *models.AgentConfiguration {
	cfg := &models.AgentConfiguration{
		Name:         name,
		LLMModel:     "gpt-4o",
		SystemPrompt: "You are a helpful assistant.",
	}
	if len(conns) > 0 {
		cfg.Prerequisites = &models.Prerequisites{OAuthProviders: conns}
	}
	return cfg
}

func dbConfig(name string) *models.AgentConfiguration {
	return &models.AgentConfiguration{
		Name:            name,
		LLMModel:        "gpt-4o",
		SystemPrompt:    "You answer questions from the database.",
		ToolsToActivate: []string{"postgres_query"},
		Prerequisites:   &models.Prerequisites{DatabaseCredentials: true},
	}
}

func newTestManager(t *testing.T, arch *fakeArchitect) *build.Manager {
	t.Helper()
	m := build.NewManager(arch, newFakeStore(), nil, catalog.New(), 2*time.Millisecond, 2)
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func countMessages(transcript []models.ChatMessage, substr string) int {
	n := 0
	for _, m := range transcript {
		if strings.Contains(m.Content, substr) {
			n++
		}
	}
	return n
}

// ── Session Path ────────────────────────────────────────────

func TestStartBuildAppliesFirstSnapshot(t *testing.T) {
	arch := &fakeArchitect{}
	m := newTestManager(t, arch)

	view, err := m.StartBuild(context.Background(), "dev@example.com", "Build me an email agent")
	if err != nil {
		t.Fatalf("StartBuild() error = %v", err)
	}
	if view.ID != "b-1" {
		t.Errorf("view.ID = %q, want b-1", view.ID)
	}
	if view.State != models.StateWaitingForUserInput {
		t.Errorf("view.State = %q, want %q", view.State, models.StateWaitingForUserInput)
	}
	if view.Thinking {
		t.Error("view.Thinking = true after snapshot applied")
	}
	if len(view.Transcript) != 2 {
		t.Fatalf("transcript has %d entries, want 2", len(view.Transcript))
	}
	if view.Transcript[0].Role != models.RoleUser || view.Transcript[0].Content != "Build me an email agent" {
		t.Errorf("first entry = %+v, want the user prompt", view.Transcript[0])
	}
	if view.Transcript[1].Role != models.RoleAgent {
		t.Errorf("second entry role = %q, want agent", view.Transcript[1].Role)
	}
}

func TestStartBuildTransportFailure(t *testing.T) {
	arch := &fakeArchitect{
		onStart: func(prompt string) (*models.BuildSession, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	m := newTestManager(t, arch)

	if _, err := m.StartBuild(context.Background(), "dev@example.com", "Build something"); err == nil {
		t.Fatal("StartBuild() error = nil, want transport error")
	}

	// The failed start must not leave a registered build behind.
	var nf *contracts.ErrNotFound
	if _, err := m.View(context.Background(), "b-1"); !errors.As(err, &nf) {
		t.Errorf("View() error = %v, want ErrNotFound", err)
	}
}

func TestSendMergesReplacementSnapshot(t *testing.T) {
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			return snapshot(id, models.StateConfigProposed, "How about this setup?"), nil
		},
	}
	m := newTestManager(t, arch)
	start, err := m.StartBuild(context.Background(), "dev@example.com", "Build me an email agent")
	if err != nil {
		t.Fatalf("StartBuild() error = %v", err)
	}

	view, err := m.Send(context.Background(), start.ID, "Use my Gmail")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if view.State != models.StateConfigProposed {
		t.Errorf("view.State = %q, want %q", view.State, models.StateConfigProposed)
	}
	if view.Thinking {
		t.Error("view.Thinking = true after response")
	}
	last := view.Transcript[len(view.Transcript)-1]
	if last.Role != models.RoleAgent || last.Content != "How about this setup?" {
		t.Errorf("last entry = %+v, want the proposal message", last)
	}
	in := arch.lastContinue()
	if in.Message != "Use my Gmail" || in.ConnectionString != "" {
		t.Errorf("continue inputs = %+v, want message only", in)
	}
}

func TestRepeatedServerMessageAppendsOnce(t *testing.T) {
	const repeat = "Still gathering requirements."
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			return snapshot(id, models.StateWaitingForUserInput, repeat), nil
		},
		onUpload: func(id, filename string) (*models.BuildSession, error) {
			return snapshot(id, models.StateWaitingForUserInput, repeat), nil
		},
	}
	m := newTestManager(t, arch)
	start, err := m.StartBuild(context.Background(), "dev@example.com", "Build me an agent")
	if err != nil {
		t.Fatalf("StartBuild() error = %v", err)
	}

	if _, err := m.Send(context.Background(), start.ID, "here is some context"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	// The upload response re-delivers the same message with no user
	// entry in between; it must not append a second time.
	view, err := m.Upload(context.Background(), start.ID, "notes.txt", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if got := countMessages(view.Transcript, repeat); got != 1 {
		t.Errorf("message %q appears %d times, want 1", repeat, got)
	}
}

func TestFinalizationPersistsAgentExactlyOnce(t *testing.T) {
	cfg := plainConfig("Email Assistant", "google")
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			snap := snapshot(id, models.StateConfigFinalized, "Here is the final configuration.")
			snap.AgentConfig = cfg
			return snap, nil
		},
	}
	m := newTestManager(t, arch)
	start, err := m.StartBuild(context.Background(), "dev@example.com", "Build me an email agent")
	if err != nil {
		t.Fatalf("StartBuild() error = %v", err)
	}

	view, err := m.Send(context.Background(), start.ID, "finalize it")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if view.State != models.StateConfigFinalized {
		t.Fatalf("view.State = %q, want %q", view.State, models.StateConfigFinalized)
	}
	if view.Config == nil || view.Graph == nil {
		t.Error("finalized view should reveal configuration and graph")
	}

	waitFor(t, time.Second, func() bool { return arch.createCount() == 1 })
	waitFor(t, time.Second, func() bool {
		v, _ := m.View(context.Background(), start.ID)
		return v.AgentID == "agent-1"
	})

	// A second snapshot carrying the same finalized state must not
	// trigger another save.
	if _, err := m.Send(context.Background(), start.ID, "looks good"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := arch.createCount(); got != 1 {
		t.Errorf("create-agent calls = %d, want 1", got)
	}

	req := arch.createAt(0)
	if req.UserEmail != "dev@example.com" || req.Name != "Email Assistant" || req.Configuration == nil {
		t.Errorf("create request = %+v, want user email and configuration", req)
	}
	if req.ConnectionString != "" {
		t.Errorf("session path should not carry a connection string, got %q", req.ConnectionString)
	}
}

func TestCompletedSnapshotCapturesServerSavedAgent(t *testing.T) {
	cfg := plainConfig("Helper")
	cfg.ID = "agent-9"
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			snap := snapshot(id, models.StateCompleted, "All done.")
			snap.AgentConfig = cfg
			return snap, nil
		},
	}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "Build me a helper")

	view, err := m.Send(context.Background(), start.ID, "ship it")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if view.State != models.StateCompleted {
		t.Errorf("view.State = %q, want %q", view.State, models.StateCompleted)
	}
	if view.AgentID != "agent-9" {
		t.Errorf("view.AgentID = %q, want agent-9", view.AgentID)
	}

	time.Sleep(20 * time.Millisecond)
	if got := arch.createCount(); got != 0 {
		t.Errorf("create-agent calls = %d, want 0 when the server already saved", got)
	}
}

func TestCredentialFlowGatesPersistence(t *testing.T) {
	dbcfg := dbConfig("DB Agent")
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			if in.ConnectionString != "" {
				snap := snapshot(id, models.StateConfigFinalized, "Connected to the database.")
				snap.AgentConfig = dbcfg
				return snap, nil
			}
			snap := snapshot(id, models.StateRequestDBCreds, "I need your database details.")
			snap.UIRequest = &models.UIRequest{Type: models.UIRequestDBCredentials}
			return snap, nil
		},
	}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "An agent over my postgres")

	view, err := m.Send(context.Background(), start.ID, "it needs my orders table")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !view.Credentials.Open {
		t.Fatal("credential modal should be open after REQUEST_DB_CREDENTIALS")
	}
	time.Sleep(20 * time.Millisecond)
	if got := arch.createCount(); got != 0 {
		t.Fatalf("create-agent calls = %d before credentials, want 0", got)
	}

	view, err = m.SubmitCredentials(context.Background(), start.ID, models.ConnectionConfig{
		Host: "db", Port: "5432", Username: "user", Password: "pw", Database: "appdb",
	})
	if err != nil {
		t.Fatalf("SubmitCredentials() error = %v", err)
	}
	if view.State != models.StateConfigFinalized {
		t.Errorf("view.State = %q, want %q", view.State, models.StateConfigFinalized)
	}
	if view.Credentials.Open {
		t.Error("credential modal should close after a successful submit")
	}

	waitFor(t, time.Second, func() bool { return arch.createCount() == 1 })
	in := arch.lastContinue()
	if in.ConnectionString != "postgresql://user:pw@db:5432/appdb" {
		t.Errorf("connection string = %q, want postgresql://user:pw@db:5432/appdb", in.ConnectionString)
	}
	if in.Message != "" {
		t.Errorf("credential continue should carry no message, got %q", in.Message)
	}
}

func TestConnectionFailureReopensGate(t *testing.T) {
	dbcfg := dbConfig("DB Agent")
	attempts := 0
	arch := &fakeArchitect{}
	arch.onContinue = func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
		if in.ConnectionString == "" {
			snap := snapshot(id, models.StateRequestDBCreds, "I need your database details.")
			snap.UIRequest = &models.UIRequest{Type: models.UIRequestDBCredentials}
			return snap, nil
		}
		attempts++
		if attempts == 1 {
			return snapshot(id, models.StateDBConnectionFailed, "Could not connect to that database."), nil
		}
		snap := snapshot(id, models.StateConfigFinalized, "Connected.")
		snap.AgentConfig = dbcfg
		return snap, nil
	}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "An agent over my postgres")

	if _, err := m.Send(context.Background(), start.ID, "query my data"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	cc := models.ConnectionConfig{Host: "db", Port: "5432", Username: "user", Password: "wrong", Database: "appdb"}
	view, err := m.SubmitCredentials(context.Background(), start.ID, cc)
	if err != nil {
		t.Fatalf("SubmitCredentials() error = %v", err)
	}
	if view.State != models.StateDBConnectionFailed {
		t.Errorf("view.State = %q, want %q", view.State, models.StateDBConnectionFailed)
	}
	if !view.Credentials.Open {
		t.Error("credential modal should reopen after a rejected connection")
	}
	if view.Credentials.Notice != "Could not connect to that database." {
		t.Errorf("notice = %q, want the server's failure message", view.Credentials.Notice)
	}
	time.Sleep(20 * time.Millisecond)
	if got := arch.createCount(); got != 0 {
		t.Fatalf("create-agent calls = %d after failed connection, want 0", got)
	}

	cc.Password = "right"
	view, err = m.SubmitCredentials(context.Background(), start.ID, cc)
	if err != nil {
		t.Fatalf("SubmitCredentials() retry error = %v", err)
	}
	if view.Credentials.Open || view.Credentials.Notice != "" {
		t.Errorf("credentials = %+v, want closed with no notice", view.Credentials)
	}
	waitFor(t, time.Second, func() bool { return arch.createCount() == 1 })
}

func TestUnknownStateAppliesSnapshotWithoutSideEffects(t *testing.T) {
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			return snapshot(id, models.SessionState("NEGOTIATING_RATES"), "Something new is happening."), nil
		},
	}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "Build me an agent")

	view, err := m.Send(context.Background(), start.ID, "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if view.State != models.SessionState("NEGOTIATING_RATES") {
		t.Errorf("view.State = %q, want the unknown state kept verbatim", view.State)
	}
	if got := countMessages(view.Transcript, "Something new"); got != 1 {
		t.Errorf("unknown-state message appears %d times, want 1", got)
	}
	if view.Failure != "" || view.Credentials.Open {
		t.Error("unknown state must not trigger failure or credential side effects")
	}
	// No known state released the thinking indicator.
	if !view.Thinking {
		t.Error("view.Thinking = false, want true until a known state clears it")
	}
	if _, err := m.Send(context.Background(), start.ID, "are you there"); !errors.Is(err, build.ErrBusy) {
		t.Errorf("Send() error = %v, want ErrBusy", err)
	}
}

func TestTransportFailureLeavesPriorStateIntact(t *testing.T) {
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "Build me an agent")

	view, err := m.Send(context.Background(), start.ID, "first try")
	if err == nil {
		t.Fatal("Send() error = nil, want transport error")
	}
	if view.State != models.StateWaitingForUserInput {
		t.Errorf("view.State = %q, want prior state intact", view.State)
	}
	if view.Alert == "" {
		t.Error("view.Alert is empty, want a visible transport alert")
	}
	if view.Thinking {
		t.Error("view.Thinking = true, want released after failure")
	}
	if got := countMessages(view.Transcript, "first try"); got != 1 {
		t.Errorf("user message appears %d times, want 1 (kept for retry)", got)
	}

	arch.onContinue = func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
		return snapshot(id, models.StateConfigProposed, "Recovered."), nil
	}
	view, err = m.Send(context.Background(), start.ID, "second try")
	if err != nil {
		t.Fatalf("Send() after recovery error = %v", err)
	}
	if view.Alert != "" {
		t.Errorf("view.Alert = %q, want cleared on success", view.Alert)
	}
	if view.State != models.StateConfigProposed {
		t.Errorf("view.State = %q, want %q", view.State, models.StateConfigProposed)
	}
}

func TestBusyWhileRoundTripOutstanding(t *testing.T) {
	release := make(chan struct{})
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			<-release
			return snapshot(id, models.StateConfigProposed, "Done thinking."), nil
		},
	}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "Build me an agent")

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), start.ID, "slow question")
		errCh <- err
	}()

	waitFor(t, time.Second, func() bool {
		v, _ := m.View(context.Background(), start.ID)
		return v.Thinking
	})

	if _, err := m.Send(context.Background(), start.ID, "impatient follow-up"); !errors.Is(err, build.ErrBusy) {
		t.Errorf("Send() while busy error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("outstanding Send() error = %v", err)
	}
	v, _ := m.View(context.Background(), start.ID)
	if v.State != models.StateConfigProposed {
		t.Errorf("view.State = %q, want %q", v.State, models.StateConfigProposed)
	}
}

func TestFailedBuildRejectsInput(t *testing.T) {
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			return snapshot(id, models.StateFailed, "The build hit an unrecoverable error."), nil
		},
	}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "Build me an agent")

	view, err := m.Send(context.Background(), start.ID, "go on")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if view.State != models.StateFailed {
		t.Errorf("view.State = %q, want %q", view.State, models.StateFailed)
	}
	if view.Failure != "The build hit an unrecoverable error." {
		t.Errorf("view.Failure = %q, want the server's message", view.Failure)
	}

	if _, err := m.Send(context.Background(), start.ID, "retry?"); !errors.Is(err, build.ErrSessionFailed) {
		t.Errorf("Send() error = %v, want ErrSessionFailed", err)
	}
	if _, err := m.Approve(context.Background(), start.ID); !errors.Is(err, build.ErrSessionFailed) {
		t.Errorf("Approve() error = %v, want ErrSessionFailed", err)
	}
}

func TestApproveRequiresFinalizedConfiguration(t *testing.T) {
	arch := &fakeArchitect{}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "Build me an agent")

	if _, err := m.Approve(context.Background(), start.ID); !errors.Is(err, build.ErrNotFinalized) {
		t.Errorf("Approve() error = %v, want ErrNotFinalized", err)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	arch := &fakeArchitect{}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "Build me an agent")

	if _, err := m.Send(context.Background(), start.ID, "   \n"); !errors.Is(err, build.ErrEmptyInput) {
		t.Errorf("Send() error = %v, want ErrEmptyInput", err)
	}
}

func TestSubmitCredentialsValidation(t *testing.T) {
	arch := &fakeArchitect{
		onContinue: func(id string, in contracts.ContinueInputs) (*models.BuildSession, error) {
			snap := snapshot(id, models.StateRequestDBCreds, "I need your database details.")
			snap.UIRequest = &models.UIRequest{Type: models.UIRequestDBCredentials}
			return snap, nil
		},
	}
	m := newTestManager(t, arch)
	start, _ := m.StartBuild(context.Background(), "dev@example.com", "Build me an agent")

	complete := models.ConnectionConfig{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "d"}
	if _, err := m.SubmitCredentials(context.Background(), start.ID, complete); !errors.Is(err, build.ErrNoCredentialPrompt) {
		t.Errorf("SubmitCredentials() without prompt error = %v, want ErrNoCredentialPrompt", err)
	}

	if _, err := m.Send(context.Background(), start.ID, "needs my db"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	missing := models.ConnectionConfig{Port: "5432", Username: "u", Password: "p", Database: "d"}
	if _, err := m.SubmitCredentials(context.Background(), start.ID, missing); !errors.Is(err, build.ErrIncompleteCredentials) {
		t.Errorf("SubmitCredentials() incomplete error = %v, want ErrIncompleteCredentials", err)
	}

	v, _ := m.View(context.Background(), start.ID)
	if !v.Credentials.Open {
		t.Error("rejected submit should leave the modal open")
	}
}
