package pipeline

import "strings"

// SoilClass is the hydrological family a soil description falls into.
type SoilClass string

const (
	SoilSandy SoilClass = "sandy"
	SoilClay  SoilClass = "clay"
	SoilPeat  SoilClass = "peat"
	SoilLoam  SoilClass = "loam"
)

// DefaultSoil is used when the plant registry has no soil on record.
const DefaultSoil = "universale"

// SoilProperties are the hydrological constants of a soil class. Field capacity and
// wilting point are volumetric moisture percentages.
type SoilProperties struct {
	Class           SoilClass
	RetentionFactor float64
	FieldCapacity   float64
	WiltingPoint    float64
	Description     string
}

var soilTable = map[SoilClass]SoilProperties{
	SoilSandy: {
		Class: SoilSandy, RetentionFactor: 0.7, FieldCapacity: 20, WiltingPoint: 5,
		Description: "Sandy: low retention. Water is available immediately but drains fast.",
	},
	SoilClay: {
		Class: SoilClay, RetentionFactor: 1.3, FieldCapacity: 45, WiltingPoint: 25,
		Description: "Clay: high retention. Holds a lot of water, much of it bound and unavailable to roots.",
	},
	SoilPeat: {
		Class: SoilPeat, RetentionFactor: 1.15, FieldCapacity: 60, WiltingPoint: 20,
		Description: "Peat: spongy. Excellent water reserve.",
	},
	SoilLoam: {
		Class: SoilLoam, RetentionFactor: 1.0, FieldCapacity: 30, WiltingPoint: 10,
		Description: "Loam: balanced between available water and drainage.",
	},
}

// ClassifySoil maps a free-form soil description (English or Italian) to a class.
func ClassifySoil(soil string) SoilClass {
	s := strings.ToLower(soil)
	switch {
	case strings.Contains(s, "sand") || strings.Contains(s, "sabbi"):
		return SoilSandy
	case strings.Contains(s, "clay") || strings.Contains(s, "argill"):
		return SoilClay
	case strings.Contains(s, "peat") || strings.Contains(s, "torb"):
		return SoilPeat
	default:
		return SoilLoam
	}
}

// LookupSoil returns the properties for a soil description, defaulting to loam.
func LookupSoil(soil string) SoilProperties {
	return soilTable[ClassifySoil(soil)]
}

// AvailableWater returns the position of moisture within [wilting point, field capacity]
// as a percentage in [0, 100], rounded to one decimal.
func AvailableWater(moisture float64, props SoilProperties) float64 {
	if moisture <= props.WiltingPoint {
		return 0
	}
	if moisture >= props.FieldCapacity {
		return 100
	}
	awc := (moisture - props.WiltingPoint) / (props.FieldCapacity - props.WiltingPoint) * 100
	return clamp(round(awc, 1), 0, 100)
}
