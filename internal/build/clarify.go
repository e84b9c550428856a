package build

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shirisha-ilura/UL/pkg/models"
)

// clarificationRound collects answers to the questions one analysis
// asked before the next analysis runs. Questions are presented one at
// a time in order; re-answering the current question overwrites the
// recorded answer, which is how a failed re-analysis gets retried.
//
// base is the prompt that produced the questions. When a re-analysis
// demands another round, that round's base is the previous augmented
// prompt, so earlier answers stay in context without being replayed
// as pending questions.
type clarificationRound struct {
	base      string
	questions []string
	answers   []string
	cursor    int
}

func newClarificationRound(base string, questions []string) *clarificationRound {
	return &clarificationRound{
		base:      base,
		questions: questions,
		answers:   make([]string, len(questions)),
	}
}

func (r *clarificationRound) current() string {
	return r.questions[r.cursor]
}

func (r *clarificationRound) record(answer string) {
	r.answers[r.cursor] = answer
}

func (r *clarificationRound) last() bool {
	return r.cursor == len(r.questions)-1
}

func (r *clarificationRound) advance() {
	r.cursor++
}

// augmentedPrompt folds a completed round back into the original
// prompt so the re-analysis sees every question with its answer.
func augmentedPrompt(original string, questions, answers []string) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nAdditional context from clarifying questions:")
	for i := range questions {
		fmt.Fprintf(&b, "\nQ: %s\nA: %s", questions[i], answers[i])
	}
	return b.String()
}

// sendDirect handles one user message on the direct path: either the
// answer to the pending clarification question or a refinement of the
// finished configuration. Lock held on entry; released before any
// network call.
func (s *Session) sendDirect(ctx context.Context, message string) error {
	if s.round != nil {
		s.round.record(message)
		if !s.round.last() {
			s.round.advance()
			s.appendAgent(s.round.current())
			s.updatedAt = time.Now().UTC()
			s.mu.Unlock()
			return nil
		}
		// Final answer: one re-analysis carrying the whole round.
		return s.analyze(ctx, augmentedPrompt(s.round.base, s.round.questions, s.round.answers))
	}
	return s.analyze(ctx, s.prompt+"\n\nRefinement: "+message)
}

// analyze runs one architect analysis and applies the outcome. Lock
// held on entry; released for the call and re-acquired to apply.
func (s *Session) analyze(ctx context.Context, prompt string) error {
	s.thinking = true
	s.inFlight = true
	s.mu.Unlock()

	result, err := s.client.Analyze(ctx, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.closed {
		return nil
	}
	if err != nil {
		// Transport failure: the round and its cursor stay put, so the
		// user's next message overwrites the last answer and retries.
		s.thinking = false
		s.alert = "The architect service could not be reached. Your message was kept; try again."
		s.updatedAt = time.Now().UTC()
		log.Error().Err(err).Str("build", s.id).Msg("analysis failed in transport")
		return err
	}
	s.alert = ""
	s.applyAnalysis(prompt, result)
	return nil
}

// applyAnalysis translates an analysis outcome into session state:
// clarification questions open a round, a configuration finalizes the
// build. Caller holds the lock.
func (s *Session) applyAnalysis(prompt string, result *models.AnalysisResult) {
	if result == nil {
		s.thinking = false
		s.alert = "The architect returned an empty analysis. Try again."
		return
	}

	if result.NeedsClarification && len(result.Questions) > 0 {
		s.round = newClarificationRound(prompt, result.Questions)
		s.thinking = false
		s.appendAgent(s.round.current())
		s.setLocalState(models.StateWaitingForUserInput)
		return
	}

	if result.Configuration != nil {
		s.round = nil
		s.apply(&models.BuildSession{
			ID:             s.id,
			State:          models.StateConfigFinalized,
			OriginalPrompt: s.prompt,
			AgentConfig:    result.Configuration,
		})
		return
	}

	// Neither questions nor a configuration: ask the user to rephrase.
	s.round = nil
	s.thinking = false
	s.appendAgent("I couldn't put together a configuration from that. Could you describe the agent another way?")
	s.setLocalState(models.StateWaitingForUserInput)
}

// setLocalState synthesizes a snapshot for the direct path, which has
// no server session feeding it. Caller holds the lock.
func (s *Session) setLocalState(state models.SessionState) {
	s.snap = &models.BuildSession{
		ID:             s.id,
		State:          state,
		OriginalPrompt: s.prompt,
		AgentConfig:    s.config,
	}
	s.updatedAt = time.Now().UTC()
}
