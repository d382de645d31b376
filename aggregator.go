package modguard

// layerRank gives each layer's specificity weight for aggregator tie-breaks:
// a contextual hit carries more confidence about intent than a category hit,
// which in turn outranks a bare regex match.
var layerRank = map[Layer]int{
	LayerRegex:      1,
	LayerCategory:   2,
	LayerContextual: 3,
}

// Aggregate reconciles the set of verdicts seen for a single message into a
// PunishmentDecision, or returns nil if none of the verdicts violated.
//
// The winner maximizes (layerRank, priority) lexicographically; every other
// violated verdict is recorded as a conflict.
func Aggregate(verdicts []ModerationVerdict) *PunishmentDecision {
	var best *ModerationVerdict
	var conflicting []ModerationVerdict

	for i := range verdicts {
		v := verdicts[i]
		if !v.Violated {
			continue
		}
		if best == nil || outranks(v, *best) {
			if best != nil {
				conflicting = append(conflicting, *best)
			}
			best = &v
		} else {
			conflicting = append(conflicting, v)
		}
	}

	if best == nil {
		return nil
	}
	return &PunishmentDecision{Verdict: *best, Conflicting: conflicting}
}

// outranks reports whether a strictly outranks b under (layerRank, priority).
func outranks(a, b ModerationVerdict) bool {
	ra, rb := layerRank[a.Layer], layerRank[b.Layer]
	if ra != rb {
		return ra > rb
	}
	return a.Priority > b.Priority
}
