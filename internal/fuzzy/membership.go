package fuzzy

import "math"

// Membership groups and their linguistic terms.
const (
	GroupSoil  = "soil"
	GroupRain  = "rain"
	GroupRatio = "ratio"
	GroupTemp  = "temp"
	GroupET0   = "et0"
)

// GroupOrder is the order groups are reported in.
var GroupOrder = []string{GroupSoil, GroupRain, GroupRatio, GroupTemp, GroupET0}

// Memberships maps group -> term -> degree in [0,1].
type Memberships map[string]map[string]float64

// Degree returns the membership of term in group, 0 when absent.
func (m Memberships) Degree(group, term string) float64 {
	return m[group][term]
}

const eps = 1e-9

func tri(x, a, b, c float64) float64 {
	if x <= a || x >= c {
		return 0
	}
	if x == b {
		return 1
	}
	if x < b {
		return (x - a) / (b - a + eps)
	}
	return (c - x) / (c - b + eps)
}

func trap(x, a, b, c, d float64) float64 {
	if x <= a || x >= d {
		return 0
	}
	if x >= b && x <= c {
		return 1
	}
	if x < b {
		return (x - a) / (b - a + eps)
	}
	return (d - x) / (d - c + eps)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// term is a named membership function over one signal.
type term struct {
	name string
	fn   func(float64) float64
}

var groups = map[string][]term{
	GroupSoil: {
		{"dry", func(x float64) float64 { return trap(x, 0, 15, 30, 45) }},
		{"moist", func(x float64) float64 { return tri(x, 35, 55, 75) }},
		{"wet", func(x float64) float64 { return trap(x, 70, 80, 100, 110) }},
	},
	GroupRain: {
		{"low", func(x float64) float64 { return trap(x, -1, 0, 1.5, 2.5) }},
		{"medium", func(x float64) float64 { return tri(x, 2, 3.5, 5) }},
		{"high", func(x float64) float64 { return trap(x, 4, 6, 10, 20) }},
	},
	GroupRatio: {
		{"early", func(x float64) float64 { return trap(x, -0.1, 0, 0.6, 0.8) }},
		{"due", func(x float64) float64 { return tri(x, 0.8, 1, 1.2) }},
		{"overdue", func(x float64) float64 { return trap(x, 1, 1.3, 2, 3) }},
	},
	GroupTemp: {
		{"low", func(x float64) float64 { return trap(x, -5, 0, 10, 15) }},
		{"moderate", func(x float64) float64 { return tri(x, 15, 22, 28) }},
		{"high", func(x float64) float64 { return trap(x, 26, 30, 36, 42) }},
	},
	GroupET0: {
		{"low", func(x float64) float64 { return trap(x, -0.1, 0, 1.5, 2) }},
		{"moderate", func(x float64) float64 { return tri(x, 1.5, 3, 4.5) }},
		{"high", func(x float64) float64 { return trap(x, 4, 5, 7, 9) }},
	},
}

// Terms lists the terms of group in declaration order.
func Terms(group string) []string {
	out := make([]string, 0, len(groups[group]))
	for _, t := range groups[group] {
		out = append(out, t.name)
	}
	return out
}

// fuzzifyGroup evaluates every term of group; an absent signal yields zero degrees.
func fuzzifyGroup(group string, x *float64) map[string]float64 {
	out := make(map[string]float64, len(groups[group]))
	for _, t := range groups[group] {
		v := 0.0
		if x != nil && isFinite(*x) {
			v = t.fn(*x)
		}
		out[t.name] = clamp01(v)
	}
	return out
}

// Fuzzify maps the signals onto every group. The ET0 group is empty when ET0 is unknown.
func Fuzzify(s Signals) Memberships {
	m := Memberships{
		GroupSoil:  fuzzifyGroup(GroupSoil, s.SoilMoisture),
		GroupRain:  fuzzifyGroup(GroupRain, s.RainNext24h),
		GroupRatio: fuzzifyGroup(GroupRatio, s.Ratio),
		GroupTemp:  fuzzifyGroup(GroupTemp, s.Temp),
		GroupET0:   map[string]float64{},
	}
	if s.ET0 != nil && isFinite(*s.ET0) {
		m[GroupET0] = fuzzifyGroup(GroupET0, s.ET0)
	}
	return m
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
