// Package domain holds the cross-venue identity record and the textual
// similarity helpers used to match markets when no explicit mapping
// entry exists.
package domain

import (
	"strings"
	"unicode"
)

// MappingEntry links one Predict market's identity to its YES/NO token IDs
// on each peer venue. Any peer side may be empty when that venue doesn't
// list an equivalent market.
type MappingEntry struct {
	PredictMarketID    string `json:"predictMarketId,omitempty"`
	PredictQuestion    string `json:"predictQuestion,omitempty"`
	PolymarketYesToken string `json:"polymarketYesToken,omitempty"`
	PolymarketNoToken  string `json:"polymarketNoToken,omitempty"`
	OpinionYesToken    string `json:"opinionYesToken,omitempty"`
	OpinionNoToken     string `json:"opinionNoToken,omitempty"`
}

// Table is the on-disk shape of the mapping file: a flat list of entries.
type Table struct {
	Entries []MappingEntry `json:"entries"`
}

// NormalizeQuestion lowercases, strips punctuation, and collapses
// whitespace so that superficially different renderings of the same
// question ("Will X win?" vs "will x win") compare equal.
func NormalizeQuestion(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	lastSpace := false
	for _, r := range strings.ToLower(q) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// tokenSet splits a normalized question into its unique word set.
func tokenSet(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// JaccardSimilarity returns the token-set Jaccard index of two questions,
// each normalized internally: |intersection| / |union|, 0 when both are
// empty.
func JaccardSimilarity(a, b string) float64 {
	setA := tokenSet(NormalizeQuestion(a))
	setB := tokenSet(NormalizeQuestion(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
