package app

import (
	"sort"

	"github.com/predikt/arb-agent/business/detect/domain"
)

// sortByEdgeDesc orders opportunities descending by edge, the ordering
// every detector's Scan promises.
func sortByEdgeDesc(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool { return opps[i].Edge > opps[j].Edge })
}
