package aggregator

import (
	"math"
	"strings"

	"irrigation-mcp-server/internal/pipeline"
)

// Crop stages after normalization.
const (
	StageInitial = "initial"
	StageMid     = "mid"
	StageLate    = "late"
)

// Profile is the agronomic profile of a plant at its current stage.
type Profile struct {
	KcStage      float64 `json:"kcStage"`
	Zr           float64 `json:"zr"` // root depth, m
	P            float64 `json:"p"`  // depletion fraction
	SoilTexture  string  `json:"soilTexture"`
	StageNorm    string  `json:"stageNorm"`
	CategoryUsed string  `json:"categoryUsed"`
}

type kcTriple struct{ initial, mid, late float64 }

func (k kcTriple) at(stage string) float64 {
	switch stage {
	case StageInitial:
		return k.initial
	case StageLate:
		return k.late
	default:
		return k.mid
	}
}

type categoryDefaults struct {
	kc          kcTriple
	zr, p       float64
	soilTexture string
}

// DefaultCategory is used when the caller gives no category.
const DefaultCategory = "erbacea"

var categories = map[string]categoryDefaults{
	"erbacea":   {kc: kcTriple{0.7, 1.05, 0.9}, zr: 0.25, p: 0.45, soilTexture: "limoso"},
	"ortivo":    {kc: kcTriple{0.7, 1.1, 0.95}, zr: 0.30, p: 0.45, soilTexture: "limoso"},
	"arbustiva": {kc: kcTriple{0.5, 0.9, 0.8}, zr: 0.50, p: 0.5, soilTexture: "argilloso"},
}

// FAO-56 table 12 single crop coefficients.
var faoKc = map[pipeline.PlantKind]kcTriple{
	pipeline.PlantTomato: {0.6, 1.15, 0.8},
	pipeline.PlantPotato: {0.5, 1.15, 0.75},
	pipeline.PlantPepper: {0.6, 1.05, 0.9},
	pipeline.PlantPeach:  {0.55, 0.9, 0.65},
	pipeline.PlantGrape:  {0.3, 0.85, 0.45},
}

// NormalizeStage maps free-form growth stages (Italian or English) to initial, mid or late.
func NormalizeStage(stage string) string {
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case "iniziale", "initial", "semina", "sowing", "trapianto", "transplant":
		return StageInitial
	case "finale", "late", "maturazione", "ripening", "raccolta", "harvest":
		return StageLate
	default:
		return StageMid
	}
}

// LookupProfile resolves Kc for species at stage from the FAO table, falling back to
// the category defaults. Root depth, depletion and texture always come from the category.
func LookupProfile(species, category, stage string) Profile {
	stg := NormalizeStage(stage)

	cat := strings.ToLower(strings.TrimSpace(category))
	base, ok := categories[cat]
	if !ok {
		cat = DefaultCategory
		base = categories[cat]
	}

	p := Profile{
		Zr:           base.zr,
		P:            base.p,
		SoilTexture:  base.soilTexture,
		StageNorm:    stg,
		CategoryUsed: cat,
		KcStage:      round2(base.kc.at(stg)),
	}
	kind := pipeline.SelectStrategy(species).Kind
	if kc, found := faoKc[kind]; found {
		p.KcStage = round2(kc.at(stg))
		p.CategoryUsed = string(kind)
	}
	return p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
