package fuzzy

import (
	"math"
	"sort"
)

// Action is the recommendation produced by the engine.
type Action string

const (
	IrrigateToday    Action = "irrigate_today"
	IrrigateTomorrow Action = "irrigate_tomorrow"
	Skip             Action = "skip"
)

// actionOrder is also the tie-break order.
var actionOrder = []Action{IrrigateToday, IrrigateTomorrow, Skip}

// Rule is a fired rule with its activation weight.
type Rule struct {
	ID      string  `json:"id"`
	Action  Action  `json:"action"`
	Weight  float64 `json:"weight"`
	Because string  `json:"because"`
}

// DefaultRule fires alone when nothing else does.
var DefaultRule = Rule{ID: "R0", Action: Skip, Weight: 0.2, Because: "No critical condition"}

// NeutralReason is used when no fired rule supports the chosen action.
const NeutralReason = "Neutral rules: no urgent intervention"

// RuleDef is a rule of the rule base: Weight maps memberships to an activation in [0,1].
type RuleDef struct {
	ID      string
	Action  Action
	Because string
	Weight  func(m Memberships) float64
}

var ruleBase = []RuleDef{
	newRule("R1", Skip, "Heavy rain expected or soil already wet", func(m Memberships) float64 {
		return math.Max(m.Degree(GroupRain, "high"), m.Degree(GroupSoil, "wet"))
	}),
	newRule("R2", IrrigateTomorrow, "Moderate rain and moist soil: better to postpone", func(m Memberships) float64 {
		return math.Min(m.Degree(GroupRain, "medium"), m.Degree(GroupSoil, "moist"))
	}),
	newRule("R3", IrrigateToday, "Interval exceeded, little rain and soil not wet", func(m Memberships) float64 {
		return min3(m.Degree(GroupRatio, "overdue"), m.Degree(GroupRain, "low"), 1-m.Degree(GroupSoil, "wet"))
	}),
	newRule("R4", IrrigateTomorrow, "Interval coming due, little rain and soil not wet", func(m Memberships) float64 {
		return min3(m.Degree(GroupRatio, "due"), m.Degree(GroupRain, "low"), 1-m.Degree(GroupSoil, "wet"))
	}),
	newRule("R5", IrrigateToday, "Hot weather and dry soil", func(m Memberships) float64 {
		return math.Min(m.Degree(GroupTemp, "high"), m.Degree(GroupSoil, "dry"))
	}),
	newRule("R6", IrrigateToday, "High evapotranspiration and dry soil", func(m Memberships) float64 {
		if len(m[GroupET0]) == 0 {
			return 0
		}
		return math.Min(m.Degree(GroupET0, "high"), m.Degree(GroupSoil, "dry"))
	}),
}

func newRule(id string, action Action, because string, weight func(Memberships) float64) RuleDef {
	return RuleDef{ID: id, Action: action, Because: because, Weight: weight}
}

func min3(a, b, c float64) float64 {
	return math.Min(a, math.Min(b, c))
}

// Evaluate returns the fired rules sorted by descending weight. Rules with equal
// weight keep rule-base order. R0 is returned alone when nothing fires.
func Evaluate(m Memberships) []Rule {
	return evaluate(ruleBase, m)
}

func evaluate(defs []RuleDef, m Memberships) []Rule {
	fired := make([]Rule, 0, len(defs))
	for _, rd := range defs {
		w := rd.Weight(m)
		if w > 0 {
			fired = append(fired, Rule{ID: rd.ID, Action: rd.Action, Weight: w, Because: rd.Because})
		}
	}
	if len(fired) == 0 {
		return []Rule{DefaultRule}
	}
	sort.SliceStable(fired, func(i, j int) bool { return fired[i].Weight > fired[j].Weight })
	return fired
}

// Aggregate takes, per action, the max weight of the rules targeting it.
func Aggregate(rules []Rule) map[Action]float64 {
	scores := make(map[Action]float64, len(actionOrder))
	for _, a := range actionOrder {
		scores[a] = 0
	}
	for _, r := range rules {
		scores[r.Action] = math.Max(scores[r.Action], r.Weight)
	}
	return scores
}

// Choose picks the best-scoring action (ties: today, tomorrow, skip) and returns
// best/(best+second) rounded to three decimals.
func Choose(scores map[Action]float64) (Action, float64) {
	ranked := append([]Action(nil), actionOrder...)
	sort.SliceStable(ranked, func(i, j int) bool { return scores[ranked[i]] > scores[ranked[j]] })

	best, second := scores[ranked[0]], scores[ranked[1]]
	confidence := best / (best + second + eps)
	return ranked[0], math.Round(confidence*1000) / 1000
}

// Reason returns the rationale of the first rule supporting action.
func Reason(rules []Rule, action Action) string {
	for _, r := range rules {
		if r.Action == action {
			return r.Because
		}
	}
	return NeutralReason
}
