package kaiku

import (
	"fmt"
	"math"
)

// CellID names a discrete spatial bucket at a given resolution, encoded as
// "c<resolution>:<latIndex>:<lngIndex>". Cells at one resolution tile the
// lat/lng domain without gaps or overlaps; distortion near the poles is
// accepted since display is distorted there too.
type CellID string

// Grid maps coordinates to cells. Resolution is an index into EdgeDegrees:
// coarser cells at low resolutions, finer cells at high ones. The finest
// edge is ~1.1 km, which keeps cell centers above the privacy floor.
type Grid struct {
	// EdgeDegrees holds the cell edge length per resolution level.
	EdgeDegrees []float64

	// ZoomSteps maps display zoom to resolution: the resolution for a
	// zoom z is the number of entries <= z. Must be sorted ascending.
	ZoomSteps []float64
}

// DefaultGrid returns the production resolution table.
func DefaultGrid() *Grid {
	return &Grid{
		EdgeDegrees: []float64{45, 20, 10, 5, 2, 1, 0.5, 0.1, 0.05, 0.01},
		ZoomSteps:   []float64{2, 4, 6, 8, 10, 12, 14, 16, 17},
	}
}

// MaxResolution is the finest level the grid supports.
func (g *Grid) MaxResolution() int {
	return len(g.EdgeDegrees) - 1
}

// ResolutionFor chooses the aggregation resolution for a display zoom.
// Pure and non-decreasing in zoom, so identical zoom always yields
// identical granularity.
func (g *Grid) ResolutionFor(zoom float64) int {
	res := 0
	for _, step := range g.ZoomSteps {
		if zoom >= step {
			res++
		}
	}
	if res > g.MaxResolution() {
		res = g.MaxResolution()
	}
	return res
}

func (g *Grid) clampResolution(resolution int) int {
	if resolution < 0 {
		return 0
	}
	if resolution > g.MaxResolution() {
		return g.MaxResolution()
	}
	return resolution
}

// CellFor buckets a coordinate into its cell at the given resolution.
func (g *Grid) CellFor(lat, lng float64, resolution int) CellID {
	resolution = g.clampResolution(resolution)
	lat, lng = clampLatLng(lat, lng)
	edge := g.EdgeDegrees[resolution]

	latIdx := int(math.Floor((lat + 90) / edge))
	lngIdx := int(math.Floor((lng + 180) / edge))

	// lat=90 and lng=180 land exactly on the upper boundary; fold them
	// into the last row/column so the tiling stays gapless.
	maxLat := int(math.Ceil(180/edge)) - 1
	maxLng := int(math.Ceil(360/edge)) - 1
	if latIdx > maxLat {
		latIdx = maxLat
	}
	if lngIdx > maxLng {
		lngIdx = maxLng
	}

	return CellID(fmt.Sprintf("c%d:%d:%d", resolution, latIdx, lngIdx))
}

// CenterOf returns the center coordinate of a cell. The center is a
// property of the grid, never of any individual message inside it.
func (g *Grid) CenterOf(id CellID) (float64, float64) {
	resolution, latIdx, lngIdx, err := parseCellID(id)
	if err != nil {
		return 0, 0
	}
	resolution = g.clampResolution(resolution)
	edge := g.EdgeDegrees[resolution]

	lat := -90 + (float64(latIdx)+0.5)*edge
	lng := -180 + (float64(lngIdx)+0.5)*edge
	return clampLatLng(lat, lng)
}

// BoundaryOf returns the cell's corner polygon as {lat, lng} pairs in
// counter-clockwise order starting at the south-west corner.
func (g *Grid) BoundaryOf(id CellID) [][2]float64 {
	resolution, latIdx, lngIdx, err := parseCellID(id)
	if err != nil {
		return nil
	}
	resolution = g.clampResolution(resolution)
	edge := g.EdgeDegrees[resolution]

	south := -90 + float64(latIdx)*edge
	west := -180 + float64(lngIdx)*edge
	north := math.Min(south+edge, 90)
	east := math.Min(west+edge, 180)

	return [][2]float64{
		{south, west},
		{south, east},
		{north, east},
		{north, west},
	}
}

func parseCellID(id CellID) (resolution, latIdx, lngIdx int, err error) {
	_, err = fmt.Sscanf(string(id), "c%d:%d:%d", &resolution, &latIdx, &lngIdx)
	return
}

// Viewport is a lat/lng bounding box used for region filtering.
// MinLng > MaxLng means the box crosses the antimeridian.
type Viewport struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether the coordinate lies inside the viewport.
func (v Viewport) Contains(loc LatLng) bool {
	if loc.Lat < v.MinLat || loc.Lat > v.MaxLat {
		return false
	}
	if v.MinLng <= v.MaxLng {
		return loc.Lng >= v.MinLng && loc.Lng <= v.MaxLng
	}
	// Antimeridian crossing: inside means east of MinLng or west of MaxLng.
	return loc.Lng >= v.MinLng || loc.Lng <= v.MaxLng
}
