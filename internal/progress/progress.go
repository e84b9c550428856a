// Package progress drives the cosmetic provisioning bar shown after
// the user approves building a finalized configuration. It is a
// client-local timer, not a reflection of real backend work.
package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shirisha-ilura/UL/pkg/models"
)

// ── Progress Simulator ───────────────────────────────────────

// Simulator advances a percentage on a fixed tick until it reaches 100,
// then fires the completion callback exactly once. A simulator never
// runs concurrently with itself: starting while a run is active stops
// the old run first.
type Simulator struct {
	interval     time.Duration
	ticksPerStep int

	mu        sync.Mutex
	stopCh    chan struct{}
	running   bool
	done      bool
	percent   float64
	increment float64
	steps     []string

	// OnComplete fires once per run when progress reaches 100. Called
	// without the simulator lock held.
	OnComplete func()
}

// New creates a simulator ticking at the given interval, spending
// ticksPerStep ticks on each provisioning step.
func New(interval time.Duration, ticksPerStep int) *Simulator {
	if interval <= 0 {
		interval = 120 * time.Millisecond // default: ~5s for a 5-step build
	}
	if ticksPerStep <= 0 {
		ticksPerStep = 8
	}
	return &Simulator{
		interval:     interval,
		ticksPerStep: ticksPerStep,
	}
}

// Start begins a fresh run over the given provisioning steps, stopping
// any run already in flight.
func (s *Simulator) Start(steps []string) {
	s.mu.Lock()
	if s.running {
		close(s.stopCh)
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.running = true
	s.done = false
	s.percent = 0
	s.steps = append([]string(nil), steps...)

	stepCount := len(steps)
	if stepCount == 0 {
		stepCount = 1
	}
	s.increment = 100 / float64(stepCount) / float64(s.ticksPerStep)
	s.mu.Unlock()

	log.Debug().Int("steps", stepCount).Dur("interval", s.interval).Msg("progress simulation started")

	go s.loop(stopCh)
}

// Stop halts the current run, freezing progress where it stands. Safe
// to call when nothing is running.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	log.Debug().Float64("percent", s.percent).Msg("progress simulation stopped")
}

// Reset stops any run and returns progress to zero.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.done = false
	s.percent = 0
	s.steps = nil
}

// View reports the current progress for display.
func (s *Simulator) View() models.ProgressView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := models.ProgressView{
		Active:  s.running,
		Percent: s.percent,
		Done:    s.done,
		Steps:   s.steps,
	}
	if n := len(s.steps); n > 0 {
		idx := int(s.percent / 100 * float64(n))
		if idx >= n {
			idx = n - 1
		}
		v.CurrentStep = idx
	}
	return v
}

// loop ticks the run started with stopCh until it finishes or is
// superseded.
func (s *Simulator) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.tick(stopCh) {
				return
			}
		case <-stopCh:
			return
		}
	}
}

// tick advances one increment and reports whether the run is over.
func (s *Simulator) tick(stopCh chan struct{}) bool {
	s.mu.Lock()
	if !s.running || s.stopCh != stopCh {
		s.mu.Unlock()
		return true
	}

	s.percent += s.increment
	if s.percent < 100 {
		s.mu.Unlock()
		return false
	}

	s.percent = 100
	s.done = true
	s.running = false
	cb := s.OnComplete
	s.mu.Unlock()

	log.Debug().Msg("progress simulation completed")
	if cb != nil {
		cb()
	}
	return true
}
