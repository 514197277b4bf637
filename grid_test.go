package kaiku

import "testing"

func TestResolutionForIsNonDecreasing(t *testing.T) {
	g := DefaultGrid()

	prev := -1
	for zoom := 0.0; zoom <= 22; zoom += 0.25 {
		res := g.ResolutionFor(zoom)
		if res < prev {
			t.Fatalf("resolution decreased from %d to %d at zoom %f", prev, res, zoom)
		}
		if res > g.MaxResolution() {
			t.Fatalf("resolution %d beyond table at zoom %f", res, zoom)
		}
		prev = res
	}
}

func TestResolutionForIsDeterministic(t *testing.T) {
	g := DefaultGrid()
	for zoom := 0.0; zoom <= 22; zoom += 0.5 {
		if g.ResolutionFor(zoom) != g.ResolutionFor(zoom) {
			t.Fatalf("resolution not deterministic at zoom %f", zoom)
		}
	}
}

func TestCellForCenterRoundtrip(t *testing.T) {
	g := DefaultGrid()

	coords := []LatLng{
		{60.1699, 24.9384},
		{0, 0},
		{-33.8688, 151.2093},
		{45.5, -73.56},
	}

	for res := 0; res <= g.MaxResolution(); res++ {
		for _, c := range coords {
			cell := g.CellFor(c.Lat, c.Lng, res)
			lat, lng := g.CenterOf(cell)
			// The center must land back in the same cell.
			if got := g.CellFor(lat, lng, res); got != cell {
				t.Errorf("res %d: center of %s landed in %s", res, cell, got)
			}
		}
	}
}

func TestCellForEdgesOfDomain(t *testing.T) {
	g := DefaultGrid()

	// Upper domain boundaries fold into the last row/column instead of
	// creating a phantom cell.
	for res := 0; res <= g.MaxResolution(); res++ {
		top := g.CellFor(90, 180, res)
		justInside := g.CellFor(89.9999, 179.9999, res)
		if top != justInside {
			t.Errorf("res %d: boundary cell %s != inner cell %s", res, top, justInside)
		}
	}
}

func TestBoundaryContainsCenter(t *testing.T) {
	g := DefaultGrid()
	cell := g.CellFor(60.1699, 24.9384, 5)

	corners := g.BoundaryOf(cell)
	if len(corners) != 4 {
		t.Fatalf("expected 4 corners, got %d", len(corners))
	}

	lat, lng := g.CenterOf(cell)
	south, west := corners[0][0], corners[0][1]
	north, east := corners[2][0], corners[2][1]
	if lat <= south || lat >= north || lng <= west || lng >= east {
		t.Errorf("center %f,%f outside boundary [%f,%f]x[%f,%f]", lat, lng, south, north, west, east)
	}
}

func TestViewportContains(t *testing.T) {
	v := Viewport{MinLat: 59, MaxLat: 61, MinLng: 24, MaxLng: 26}

	if !v.Contains(LatLng{60, 25}) {
		t.Errorf("point inside viewport reported outside")
	}
	if v.Contains(LatLng{62, 25}) {
		t.Errorf("point north of viewport reported inside")
	}

	// Antimeridian crossing box around Fiji.
	fiji := Viewport{MinLat: -20, MaxLat: -15, MinLng: 177, MaxLng: -178}
	if !fiji.Contains(LatLng{-17, 179}) {
		t.Errorf("point east of antimeridian should be inside")
	}
	if !fiji.Contains(LatLng{-17, -179}) {
		t.Errorf("point west of antimeridian should be inside")
	}
	if fiji.Contains(LatLng{-17, 0}) {
		t.Errorf("Greenwich is not near Fiji")
	}
}
