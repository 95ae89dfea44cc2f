// Package explain renders advisor decisions as short deterministic text.
package explain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"irrigation-mcp-server/internal/aggregator"
	"irrigation-mcp-server/internal/fuzzy"
)

const missing = "n/d"

// Explanation is the rendered text plus how it was produced.
type Explanation struct {
	Text          string `json:"text"`
	Deterministic bool   `json:"deterministic"`
}

// Input is what the explainer reads. Profile may be nil.
type Input struct {
	Profile  *aggregator.Profile
	Weather  aggregator.Weather
	Decision fuzzy.Decision
}

// Explain renders six lines: advice, reason, data, memberships, rules and confidence.
func Explain(in Input) Explanation {
	return Explanation{Text: Text(in), Deterministic: true}
}

// Text renders the explanation without the wrapper.
func Text(in Input) string {
	d := in.Decision
	w := in.Weather

	var kc *float64
	stage := missing
	if in.Profile != nil {
		kc = fuzzy.Float(in.Profile.KcStage)
		if in.Profile.StageNorm != "" {
			stage = in.Profile.StageNorm
		}
	}

	rain := w.RainNext24h
	if rain == nil {
		rain = w.PrecipDaily
	}

	data := fmt.Sprintf("Data: ET0=%s, Kc=%s (stage=%s)", number(w.ET0, " mm/day"), number(kc, ""), stage)
	if w.ET0 != nil && kc != nil {
		etc := *w.ET0 * *kc
		data += ", ETc≈" + number(&etc, " mm/day")
	}
	data += fmt.Sprintf(", Rain 24h=%s, Soil=%s.", number(rain, " mm"), number(w.Weather.SoilMoisture(), "%"))

	reason := d.Reason
	if reason == "" {
		reason = missing
	}

	lines := []string{
		"Advice: " + actionLine(d.Recommendation) + ".",
		"Reason: " + reason + ".",
		data,
		"Fuzzy: " + Memberships(d.Tech.Memberships) + ".",
		"Rules: " + Rules(d.Tech.Rules) + ".",
		fmt.Sprintf("Confidence: %s. Next check: %s.", number(fuzzy.Float(d.Confidence), ""), nextCheck(d.NextDate)),
	}
	return strings.Join(lines, "\n")
}

func actionLine(a fuzzy.Action) string {
	switch a {
	case fuzzy.IrrigateToday:
		return "Irrigate today"
	case fuzzy.IrrigateTomorrow:
		return "Irrigate tomorrow"
	case fuzzy.Skip:
		return "Do not irrigate"
	case "":
		return missing
	default:
		return string(a)
	}
}

// Memberships lists the two strongest terms per group, e.g. "soil: dry=1.00, moist=0.00".
func Memberships(m fuzzy.Memberships) string {
	var parts []string
	for _, group := range fuzzy.GroupOrder {
		degrees := m[group]
		if len(degrees) == 0 {
			continue
		}
		terms := fuzzy.Terms(group)
		sort.SliceStable(terms, func(i, j int) bool {
			return degrees[terms[i]] > degrees[terms[j]]
		})
		if len(terms) > 2 {
			terms = terms[:2]
		}
		entries := make([]string, 0, len(terms))
		for _, t := range terms {
			entries = append(entries, fmt.Sprintf("%s=%.2f", t, degrees[t]))
		}
		parts = append(parts, group+": "+strings.Join(entries, ", "))
	}
	if len(parts) == 0 {
		return missing
	}
	return strings.Join(parts, "; ")
}

// Rules lists fired rules as "R3→irrigate_today (w=1.00): because", joined by " | ".
func Rules(rules []fuzzy.Rule) string {
	if len(rules) == 0 {
		return missing
	}
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, fmt.Sprintf("%s→%s (w=%.2f): %s", r.ID, r.Action, r.Weight, r.Because))
	}
	return strings.Join(out, " | ")
}

func nextCheck(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return missing
	}
	return t.Format("02 Jan, 15:04")
}

// number prints v with at most two decimals, trailing zeros trimmed.
func number(v *float64, unit string) string {
	if v == nil {
		return missing
	}
	s := strconv.FormatFloat(*v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return s + unit
}
