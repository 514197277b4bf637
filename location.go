package kaiku

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const earthRadiusKm = 6371.0

// kmPerDegreeLat is the length of one degree of latitude.
var kmPerDegreeLat = earthRadiusKm * math.Pi / 180

// Obfuscator applies the privacy floor to raw coordinates. The persisted
// location never equals the true device location, and grid snapping never
// resolves below the configured precision floor regardless of display zoom.
type Obfuscator struct {
	FloorKm          float64
	MaxGridPrecision int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewObfuscator(cfg Config) *Obfuscator {
	return &Obfuscator{
		FloorKm:          cfg.ObfuscationKm,
		MaxGridPrecision: cfg.MaxGridPrecision,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Obfuscate displaces a raw coordinate by the fixed privacy-floor distance
// in a random direction. The magnitude is constant; only the bearing is
// random, so the result is always a full FloorKm away from the input.
func (o *Obfuscator) Obfuscate(lat, lng float64) (float64, float64) {
	lat, lng = clampLatLng(lat, lng)

	o.mu.Lock()
	bearing := o.rng.Float64() * 2 * math.Pi
	o.mu.Unlock()

	dLat := o.FloorKm * math.Cos(bearing) / kmPerDegreeLat

	// Longitude degrees shrink with latitude; clamp the factor so the
	// displacement stays bounded near the poles.
	lngScale := math.Cos(lat * math.Pi / 180)
	if math.Abs(lngScale) < 0.01 {
		lngScale = 0.01
	}
	dLng := o.FloorKm * math.Sin(bearing) / (kmPerDegreeLat * lngScale)

	return clampLatLng(lat+dLat, lng+dLng)
}

// SnapToGrid rounds a coordinate to a fixed decimal grid for aggregation.
// The requested precision is clamped to the privacy floor inside this
// function; callers cannot opt out of the clamp.
func (o *Obfuscator) SnapToGrid(lat, lng float64, precision int) (float64, float64) {
	if precision > o.MaxGridPrecision {
		precision = o.MaxGridPrecision
	}
	if precision < 0 {
		precision = 0
	}
	lat, lng = clampLatLng(lat, lng)
	factor := math.Pow(10, float64(precision))
	return math.Round(lat*factor) / factor, math.Round(lng*factor) / factor
}

// IsRemote reports whether the target location is farther from the true
// location than the remote threshold.
func IsRemote(trueLoc, target LatLng, thresholdKm float64) bool {
	return HaversineKm(trueLoc, target) > thresholdKm
}

// HaversineKm computes the great-circle distance between two coordinates.
func HaversineKm(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// clampLatLng forces a coordinate into the valid lat/lng domain.
// Longitude is wrapped rather than clamped so antimeridian crossings
// from the perturbation stay on the map.
func clampLatLng(lat, lng float64) (float64, float64) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		lat = 0
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		lng = 0
	}
	if lat > 90 {
		lat = 90
	}
	if lat < -90 {
		lat = -90
	}
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lat, lng
}
