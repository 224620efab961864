package app

import (
	mappingdomain "github.com/predikt/arb-agent/business/mapping/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

// pairKey groups a market with its YES/NO counterpart by conditionId, then
// eventId, then normalized question, in that preference order.
func pairKey(m mdomain.Market) string {
	switch {
	case m.ConditionID != "":
		return "c:" + m.ConditionID
	case m.EventID != "":
		return "e:" + m.EventID
	case m.Question != "":
		return "q:" + mappingdomain.NormalizeQuestion(m.Question)
	default:
		return ""
	}
}

// yesNoPair is one venue's YES+NO market pair sharing a pairKey.
type yesNoPair struct {
	Key string
	Yes mdomain.Market
	No  mdomain.Market
}

// groupYesNoPairs buckets same-venue markets into YES/NO pairs. Groups
// missing either side, or whose outcome labels don't identify YES/NO, are
// dropped.
func groupYesNoPairs(markets []mdomain.Market) []yesNoPair {
	type bucket struct {
		yes, no mdomain.Market
		hasYes  bool
		hasNo   bool
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0)

	for _, m := range markets {
		key := pairKey(m)
		if key == "" {
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
			order = append(order, key)
		}
		switch m.Outcome {
		case mdomain.OutcomeYes:
			b.yes, b.hasYes = m, true
		case mdomain.OutcomeNo:
			b.no, b.hasNo = m, true
		}
	}

	pairs := make([]yesNoPair, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		if b.hasYes && b.hasNo {
			pairs = append(pairs, yesNoPair{Key: key, Yes: b.yes, No: b.no})
		}
	}
	return pairs
}

// groupByCondition buckets markets sharing a non-empty conditionId, the
// multi-outcome grouping key.
func groupByCondition(markets []mdomain.Market) map[string][]mdomain.Market {
	groups := make(map[string][]mdomain.Market)
	for _, m := range markets {
		if m.ConditionID == "" {
			continue
		}
		groups[m.ConditionID] = append(groups[m.ConditionID], m)
	}
	return groups
}
