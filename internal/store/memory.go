// Package store — in-memory Store implementation.
// Builds live in a map guarded by a RWMutex, mirrored to a JSON file on
// disk so the history list survives gateway restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shirisha-ilura/UL/pkg/models"
)

const (
	archiveName = "builds.json"
	flushDelay  = 500 * time.Millisecond
	sweepEvery  = 10 * time.Minute
	defaultTTL  = 7 * 24 * time.Hour
)

// archive is the JSON shape mirrored to disk.
type archive struct {
	SavedAt time.Time                      `json:"saved_at"`
	Builds  map[string]*models.BuildRecord `json:"builds"` // key: build id
}

// MemoryStore implements Store with an in-memory map and a debounced
// JSON mirror on disk.
type MemoryStore struct {
	mu     sync.RWMutex
	builds map[string]*models.BuildRecord // key: build id

	path    string        // mirror file; empty disables persistence
	flushMu sync.Mutex    // serializes file writes
	dirty   chan struct{} // coalesced flush requests
	done    chan struct{} // stops the housekeeping goroutine

	// Terminal builds older than this are swept automatically so the
	// history list does not grow forever. UL_BUILD_TTL overrides the
	// 7-day default (Go duration string).
	ttl time.Duration
}

// NewMemoryStore creates the in-memory store. When UL_DATA_DIR is set
// the build history is mirrored to builds.json in that directory,
// otherwise it lands in ~/.ul.
func NewMemoryStore() *MemoryStore {
	ttl := defaultTTL
	if raw := os.Getenv("UL_BUILD_TTL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			ttl = parsed
		} else {
			log.Warn().Str("value", raw).Msg("Invalid UL_BUILD_TTL, using default 7d")
		}
	}

	m := &MemoryStore{
		builds: make(map[string]*models.BuildRecord),
		dirty:  make(chan struct{}, 1),
		done:   make(chan struct{}),
		ttl:    ttl,
	}

	dataDir := os.Getenv("UL_DATA_DIR")
	if dataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataDir = filepath.Join(home, ".ul")
		}
	}
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
		} else {
			m.path = filepath.Join(dataDir, archiveName)
		}
	}

	if m.path != "" {
		m.restore()
	}
	go m.housekeeping()

	log.Info().
		Str("build_ttl", ttl.String()).
		Str("archive", m.path).
		Msg("Build registry configured")

	return m
}

// markDirty schedules a flush. Non-blocking: rapid writes coalesce into
// at most one disk write per flushDelay window.
func (m *MemoryStore) markDirty() {
	if m.path == "" {
		return
	}
	select {
	case m.dirty <- struct{}{}:
	default:
		// flush already pending
	}
}

// housekeeping is the single background goroutine: it debounces flush
// requests and periodically sweeps expired terminal builds.
func (m *MemoryStore) housekeeping() {
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	var flush <-chan time.Time
	for {
		select {
		case <-m.done:
			return
		case <-m.dirty:
			if flush == nil {
				flush = time.After(flushDelay)
			}
		case <-flush:
			flush = nil
			m.flush()
		case <-sweep.C:
			m.sweepExpired()
		}
	}
}

// sweepExpired drops completed and failed builds whose last update is
// older than the TTL. Live builds are never swept regardless of age.
func (m *MemoryStore) sweepExpired() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var swept int
	for id, b := range m.builds {
		if b.State.Terminal() && b.UpdatedAt.Before(cutoff) {
			delete(m.builds, id)
			swept++
		}
	}
	m.mu.Unlock()

	if swept > 0 {
		log.Info().Int("swept", swept).Str("ttl", m.ttl.String()).Msg("Swept expired builds")
		m.markDirty()
	}
}

// flush writes the current build map to disk, going through a temp file
// so a crash mid-write cannot corrupt the archive.
func (m *MemoryStore) flush() {
	m.mu.RLock()
	data, err := json.MarshalIndent(archive{SavedAt: time.Now().UTC(), Builds: m.builds}, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal build archive")
		return
	}

	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write build archive")
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("Failed to replace build archive")
		return
	}
	log.Debug().Str("path", m.path).Msg("Build archive written")
}

// restore loads the archive from disk on startup.
func (m *MemoryStore) restore() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.path).Msg("No build archive yet, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.path).Msg("Failed to read build archive")
		return
	}

	var arch archive
	if err := json.Unmarshal(data, &arch); err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("Failed to parse build archive, starting fresh")
		return
	}

	m.mu.Lock()
	if arch.Builds != nil {
		m.builds = arch.Builds
	}
	m.mu.Unlock()

	log.Info().Int("builds", len(arch.Builds)).Str("path", m.path).Msg("Build history restored")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops housekeeping and forces a final synchronous flush so no
// in-flight writes are lost. Safe to call more than once.
func (m *MemoryStore) Close() error {
	select {
	case <-m.done:
		// Already closed
		return nil
	default:
		close(m.done)
	}

	if m.path != "" {
		m.flush()
	}
	log.Info().Msg("Build registry closed")
	return nil
}

// ── Build CRUD ──────────────────────────────────────────────

// ListBuilds returns summaries newest-first, filtered by user email
// when one is given.
func (m *MemoryStore) ListBuilds(_ context.Context, userEmail string) ([]models.BuildSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.BuildSummary, 0, len(m.builds))
	for _, b := range m.builds {
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
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetBuild(_ context.Context, id string) (*models.BuildRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.builds[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "build", Key: id}
	}
	copy := *b
	return &copy, nil
}

// SaveBuild upserts a record, stamping CreatedAt on first write and
// UpdatedAt on every write.
func (m *MemoryStore) SaveBuild(_ context.Context, record *models.BuildRecord) error {
	m.mu.Lock()
	copy := *record
	now := time.Now().UTC()
	if existing, ok := m.builds[copy.ID]; ok {
		copy.CreatedAt = existing.CreatedAt
	} else if copy.CreatedAt.IsZero() {
		copy.CreatedAt = now
	}
	copy.UpdatedAt = now
	m.builds[copy.ID] = &copy
	m.mu.Unlock()
	m.markDirty()
	return nil
}

func (m *MemoryStore) DeleteBuild(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.builds[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "build", Key: id}
	}
	delete(m.builds, id)
	m.mu.Unlock()
	m.markDirty()
	return nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
