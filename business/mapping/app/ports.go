package app

import "github.com/predikt/arb-agent/business/mapping/domain"

// Store is the persistence port for the mapping table: a file-backed JSON
// document in production, swappable for tests.
type Store interface {
	Load() ([]domain.MappingEntry, error)
	Save(entries []domain.MappingEntry) error
}
