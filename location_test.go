package kaiku

import (
	"math"
	"testing"
)

func TestObfuscateNeverReturnsInput(t *testing.T) {
	o := NewObfuscator(DefaultConfig())

	coords := []LatLng{
		{60.1699, 24.9384}, // Helsinki
		{0, 0},
		{-33.8688, 151.2093},
		{89.9, 179.9},
		{-89.9, -179.9},
	}

	for _, c := range coords {
		for i := 0; i < 50; i++ {
			lat, lng := o.Obfuscate(c.Lat, c.Lng)
			if lat == c.Lat && lng == c.Lng {
				t.Fatalf("obfuscate returned the exact input for %v", c)
			}
			if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
				t.Fatalf("obfuscate left the valid domain: %f,%f", lat, lng)
			}
		}
	}
}

func TestObfuscateDisplacementMatchesFloor(t *testing.T) {
	o := NewObfuscator(DefaultConfig())
	origin := LatLng{60.1699, 24.9384}

	for i := 0; i < 100; i++ {
		lat, lng := o.Obfuscate(origin.Lat, origin.Lng)
		d := HaversineKm(origin, LatLng{lat, lng})
		// Constant magnitude, random bearing; allow slack for the
		// spherical approximations.
		if d < o.FloorKm*0.8 || d > o.FloorKm*1.3 {
			t.Errorf("displacement %f km, want about %f km", d, o.FloorKm)
		}
	}
}

func TestObfuscateClampsOutOfRangeInput(t *testing.T) {
	o := NewObfuscator(DefaultConfig())
	lat, lng := o.Obfuscate(120, 500)
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		t.Errorf("out-of-range input was not clamped: %f,%f", lat, lng)
	}
}

func TestSnapToGridClampsPrecision(t *testing.T) {
	o := NewObfuscator(DefaultConfig())
	rawLat, rawLng := 60.169876543, 24.938765432

	// Even a ridiculous zoomed-in request never resolves below the floor.
	lat, lng := o.SnapToGrid(rawLat, rawLng, 9)
	wantLat := math.Round(rawLat*100) / 100
	wantLng := math.Round(rawLng*100) / 100
	if lat != wantLat || lng != wantLng {
		t.Errorf("expected precision clamp to %d decimals, got %f,%f", o.MaxGridPrecision, lat, lng)
	}

	// Coarser than the floor is fine.
	lat, _ = o.SnapToGrid(rawLat, rawLng, 1)
	if lat != math.Round(rawLat*10)/10 {
		t.Errorf("coarse snap broken, got %f", lat)
	}

	// Negative precision means whole degrees.
	lat, _ = o.SnapToGrid(rawLat, rawLng, -3)
	if lat != 60 {
		t.Errorf("negative precision should clamp to 0 decimals, got %f", lat)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	helsinki := LatLng{60.1699, 24.9384}
	tampere := LatLng{61.4978, 23.7610}

	d := HaversineKm(helsinki, tampere)
	if d < 155 || d > 170 {
		t.Errorf("Helsinki-Tampere should be ~160 km, got %f", d)
	}

	if HaversineKm(helsinki, helsinki) != 0 {
		t.Errorf("distance to self should be zero")
	}
}

func TestIsRemote(t *testing.T) {
	helsinki := LatLng{60.1699, 24.9384}
	espoo := LatLng{60.2055, 24.6559}
	oulu := LatLng{65.0121, 25.4651}

	if IsRemote(helsinki, espoo, 150) {
		t.Errorf("Espoo should not be remote from Helsinki")
	}
	if !IsRemote(helsinki, oulu, 150) {
		t.Errorf("Oulu should be remote from Helsinki")
	}
}
