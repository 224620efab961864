// Package app hosts the Mapping service: a reloadable, indexed view over
// the cross-venue identity table.
package app

import (
	"context"
	"sync"

	"github.com/predikt/arb-agent/business/mapping/domain"
	"github.com/predikt/arb-agent/internal/logger"
)

// Mapping is the in-memory, indexed view of the mapping table. Reload
// rebuilds both indices from the backing Store so lookups never observe a
// half-updated table.
type Mapping struct {
	store Store
	log   logger.LoggerInterface

	mu         sync.RWMutex
	entries    []domain.MappingEntry
	byID       map[string]domain.MappingEntry
	byQuestion map[string]domain.MappingEntry
}

// New builds a Mapping backed by store. Call Reload before first use.
func New(store Store, log logger.LoggerInterface) *Mapping {
	return &Mapping{
		store:      store,
		log:        log,
		byID:       make(map[string]domain.MappingEntry),
		byQuestion: make(map[string]domain.MappingEntry),
	}
}

// Reload re-reads the backing store and rebuilds the ID and normalized-
// question indices atomically with respect to readers.
func (m *Mapping) Reload(ctx context.Context) error {
	entries, err := m.store.Load()
	if err != nil {
		if m.log != nil {
			m.log.Warn(ctx, "mapping: reload failed, keeping previous table", "err", err)
		}
		return err
	}

	byID := make(map[string]domain.MappingEntry, len(entries))
	byQuestion := make(map[string]domain.MappingEntry, len(entries))
	for _, e := range entries {
		if e.PredictMarketID != "" {
			byID[e.PredictMarketID] = e
		}
		if e.PredictQuestion != "" {
			byQuestion[domain.NormalizeQuestion(e.PredictQuestion)] = e
		}
	}

	m.mu.Lock()
	m.entries = entries
	m.byID = byID
	m.byQuestion = byQuestion
	m.mu.Unlock()
	return nil
}

// Entries returns a snapshot of the full table.
func (m *Mapping) Entries() []domain.MappingEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.MappingEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Resolve looks up an entry by Predict market ID first, then by normalized
// question, returning false when neither matches.
func (m *Mapping) Resolve(predictMarketID, predictQuestion string) (domain.MappingEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if predictMarketID != "" {
		if e, ok := m.byID[predictMarketID]; ok {
			return e, true
		}
	}
	if predictQuestion != "" {
		if e, ok := m.byQuestion[domain.NormalizeQuestion(predictQuestion)]; ok {
			return e, true
		}
	}
	return domain.MappingEntry{}, false
}

// ResolveSimilar is the textual fallback used when Resolve finds nothing:
// it scans every entry for the highest Jaccard similarity against
// question and returns it if it clears minSimilarity.
func (m *Mapping) ResolveSimilar(question string, minSimilarity float64) (domain.MappingEntry, float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best domain.MappingEntry
	bestScore := 0.0
	for _, e := range m.entries {
		if e.PredictQuestion == "" {
			continue
		}
		score := domain.JaccardSimilarity(question, e.PredictQuestion)
		if score > bestScore {
			bestScore = score
			best = e
		}
	}
	if bestScore >= minSimilarity {
		return best, bestScore, true
	}
	return domain.MappingEntry{}, bestScore, false
}

// Save persists entries through the backing store and reloads the
// in-memory indices from the write, keeping them consistent with disk.
func (m *Mapping) Save(ctx context.Context, entries []domain.MappingEntry) error {
	if err := m.store.Save(entries); err != nil {
		return err
	}
	return m.Reload(ctx)
}
