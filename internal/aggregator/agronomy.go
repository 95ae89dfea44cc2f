package aggregator

import (
	"math"
	"time"
)

// sanitize drops the -999 and -9999 missing-value sentinels and non-finite values.
func sanitize(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	if f == -999 || f == -9999 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ExtraterrestrialRadiation returns Ra in MJ/m²/day for a latitude in degrees and a
// day of year (FAO-56 eq. 21). ok is false where the sunset hour angle is undefined.
func ExtraterrestrialRadiation(latDeg float64, doy int) (ra float64, ok bool) {
	lat := latDeg * math.Pi / 180
	angle := 2 * math.Pi * float64(doy) / 365
	dr := 1 + 0.033*math.Cos(angle)
	delta := 0.409 * math.Sin(angle-1.39)

	x := -math.Tan(lat) * math.Tan(delta)
	if x < -1 || x > 1 || math.IsNaN(x) {
		return 0, false
	}
	ws := math.Acos(x)

	const gsc = 0.0820 // MJ m^-2 min^-1
	ra = (24 * 60 / math.Pi) * gsc * dr * (ws*math.Sin(lat)*math.Sin(delta) + math.Cos(lat)*math.Cos(delta)*math.Sin(ws))
	return ra, true
}

// HargreavesET0 estimates reference evapotranspiration in mm/day, rounded to two
// decimals. Estimates outside [0, 20] are rejected.
func HargreavesET0(latDeg, tmin, tmax, tmean float64, day time.Time) (float64, bool) {
	ra, ok := ExtraterrestrialRadiation(latDeg, day.YearDay())
	if !ok {
		return 0, false
	}
	td := math.Max(0, tmax-tmin)
	et0 := 0.0023 * (tmean + 17.8) * math.Sqrt(td) * ra
	if et0 < 0 || et0 > 20 || math.IsNaN(et0) {
		return 0, false
	}
	return math.Round(et0*100) / 100, true
}

// SoilMoistureFromHumidity is a coarse topsoil estimate from air humidity, clamped to [10, 95].
func SoilMoistureFromHumidity(rh float64) float64 {
	return math.Max(10, math.Min(95, rh))
}

// distanceKm is the great-circle distance between two points.
func distanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
