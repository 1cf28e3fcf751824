package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

// Errors for store operations.
var (
	ErrStorageCorrupt  = errors.New("pattern store corrupted")
	ErrPatternNotFound = errors.New("pattern not found")
	ErrPatternExists   = errors.New("pattern already exists")
	ErrStoreClosed     = errors.New("pattern store closed")
)

// documentVersion is the current persisted document format.
const documentVersion = 1

// Document is the persisted whole-store state: every pattern keyed by id,
// plus the aggregate stats computed from them.
type Document struct {
	Version   int                         `json:"version"`
	Patterns  map[string]*pattern.Pattern `json:"patterns"`
	Stats     pattern.AggregateStats      `json:"stats"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() *Document {
	return &Document{
		Version:  documentVersion,
		Patterns: make(map[string]*pattern.Pattern),
	}
}

// Get returns the pattern with the given id from the document.
func (d *Document) Get(id string) (*pattern.Pattern, bool) {
	p, ok := d.Patterns[id]
	return p, ok
}

// Put inserts or replaces a pattern, keyed by its id.
func (d *Document) Put(p *pattern.Pattern) {
	d.Patterns[p.ID] = p
}

// Delete removes a pattern by id.
func (d *Document) Delete(id string) {
	delete(d.Patterns, id)
}

// ByToolCategory returns the document's patterns for one tool and category,
// sorted by id for deterministic iteration.
func (d *Document) ByToolCategory(tool string, category pattern.ErrorCategory) []*pattern.Pattern {
	var out []*pattern.Pattern
	for _, p := range d.Patterns {
		if p.Tool == tool && p.Category == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Backend persists the whole document.
type Backend interface {
	// Load reads the full document. A missing store loads as an empty
	// document; a present but unreadable one is ErrStorageCorrupt.
	Load(ctx context.Context) (*Document, error)

	// Save writes the full document, replacing the previous state.
	Save(ctx context.Context, doc *Document) error

	// Close releases backend resources.
	Close() error
}

// InvalidateFunc is called after the in-memory snapshot changes.
type InvalidateFunc func()

// PatternStore holds the in-memory snapshot of all learned patterns and
// serializes every change through its backend. Reads return copies, so
// callers can hold results without locking.
type PatternStore struct {
	backend Backend
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.RWMutex
	patterns map[string]*pattern.Pattern
	stats    pattern.AggregateStats
	closed   bool

	hookMu sync.Mutex
	hooks  []InvalidateFunc
}

// NewPatternStore loads the initial snapshot from the backend. A corrupt
// store fails here; operators must repair or remove it before the service
// starts learning on top of bad state.
func NewPatternStore(ctx context.Context, backend Backend, logger *zap.Logger) (*PatternStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PatternStore{
		backend: backend,
		logger:  logger,
		metrics: NewMetrics(),
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory snapshot with the backend's current state.
// On error the previous snapshot stays in place.
func (s *PatternStore) Reload(ctx context.Context) error {
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	if doc.Patterns == nil {
		doc.Patterns = make(map[string]*pattern.Pattern)
	}
	stats := computeStats(doc.Patterns)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.patterns = doc.Patterns
	s.stats = stats
	s.mu.Unlock()

	s.metrics.RecordReload()
	s.metrics.SetPatternCount(stats.TotalPatterns)
	s.logger.Info("pattern store loaded", zap.Int("patterns", stats.TotalPatterns))
	s.notifyInvalidate()
	return nil
}

// Get returns a copy of the pattern with the given id.
func (s *PatternStore) Get(id string) (*pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	return p.Clone(), nil
}

// Query returns copies of all patterns for one tool and category, highest
// confidence first.
func (s *PatternStore) Query(tool string, category pattern.ErrorCategory) []*pattern.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*pattern.Pattern
	for _, p := range s.patterns {
		if p.Tool == tool && p.Category == category {
			out = append(out, p.Clone())
		}
	}
	sortByConfidence(out)
	return out
}

// ListHighConfidence returns copies of the tool's patterns at or above the
// given confidence, highest first.
func (s *PatternStore) ListHighConfidence(tool string, minConfidence float64) []*pattern.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*pattern.Pattern
	for _, p := range s.patterns {
		if p.Tool == tool && p.Confidence >= minConfidence {
			out = append(out, p.Clone())
		}
	}
	sortByConfidence(out)
	return out
}

// List returns copies of every stored pattern, sorted by id.
func (s *PatternStore) List() []*pattern.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*pattern.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns the aggregate stats of the current snapshot.
func (s *PatternStore) Stats() pattern.AggregateStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Count returns the number of stored patterns.
func (s *PatternStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// Add stores a new pattern. The id must not already be present.
func (s *PatternStore) Add(ctx context.Context, p *pattern.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.Mutate(ctx, func(doc *Document) error {
		if _, ok := doc.Get(p.ID); ok {
			return fmt.Errorf("%w: %s", ErrPatternExists, p.ID)
		}
		doc.Put(p.Clone())
		return nil
	})
}

// Update replaces an existing pattern. The id must be present.
func (s *PatternStore) Update(ctx context.Context, p *pattern.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.Mutate(ctx, func(doc *Document) error {
		if _, ok := doc.Get(p.ID); !ok {
			return fmt.Errorf("%w: %s", ErrPatternNotFound, p.ID)
		}
		doc.Put(p.Clone())
		return nil
	})
}

// Delete removes a pattern by id. The id must be present.
func (s *PatternStore) Delete(ctx context.Context, id string) error {
	return s.Mutate(ctx, func(doc *Document) error {
		if _, ok := doc.Get(id); !ok {
			return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
		}
		doc.Delete(id)
		return nil
	})
}

// Mutate applies fn to a deep copy of the current snapshot, recomputes the
// stats, and persists the result before swapping it in. When fn or the save
// fails, neither memory nor disk changes.
func (s *PatternStore) Mutate(ctx context.Context, fn func(doc *Document) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}

	doc := NewDocument()
	for id, p := range s.patterns {
		doc.Patterns[id] = p.Clone()
	}
	if err := fn(doc); err != nil {
		s.mu.Unlock()
		return err
	}
	for id, p := range doc.Patterns {
		if p == nil || p.ID != id {
			s.mu.Unlock()
			return fmt.Errorf("%w: entry %s does not match its key", ErrStorageCorrupt, id)
		}
	}
	doc.Stats = computeStats(doc.Patterns)
	doc.UpdatedAt = time.Now().UTC()

	if err := s.backend.Save(ctx, doc); err != nil {
		s.mu.Unlock()
		s.metrics.RecordSaveError()
		return fmt.Errorf("save patterns: %w", err)
	}
	s.patterns = doc.Patterns
	s.stats = doc.Stats
	s.mu.Unlock()

	s.metrics.RecordSave()
	s.metrics.SetPatternCount(doc.Stats.TotalPatterns)
	s.notifyInvalidate()
	return nil
}

// OnInvalidate registers a hook called after every snapshot change. Hooks
// run outside the store lock and must not block.
func (s *PatternStore) OnInvalidate(fn InvalidateFunc) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Close marks the store closed and releases the backend.
func (s *PatternStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.backend.Close()
}

func (s *PatternStore) notifyInvalidate() {
	s.hookMu.Lock()
	hooks := make([]InvalidateFunc, len(s.hooks))
	copy(hooks, s.hooks)
	s.hookMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// computeStats flattens the map for the aggregate computation.
func computeStats(patterns map[string]*pattern.Pattern) pattern.AggregateStats {
	values := make([]pattern.Pattern, 0, len(patterns))
	for _, p := range patterns {
		values = append(values, *p)
	}
	return pattern.ComputeStats(values)
}

func sortByConfidence(patterns []*pattern.Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		return patterns[i].ID < patterns[j].ID
	})
}
