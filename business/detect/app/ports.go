package app

import mappingdomain "github.com/predikt/arb-agent/business/mapping/domain"

// MappingResolver is the subset of mapping.app.Mapping the CrossVenue
// detector depends on, kept as a narrow port so detect stays decoupled
// from mapping's infra.
type MappingResolver interface {
	Resolve(predictMarketID, predictQuestion string) (mappingdomain.MappingEntry, bool)
	ResolveSimilar(question string, minSimilarity float64) (mappingdomain.MappingEntry, float64, bool)
}
