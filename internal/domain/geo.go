package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// NearestFarmMaxKm is the search radius for location lookups: a farm
// further away than this is treated as "not found".
const NearestFarmMaxKm = 50.0

// HaversineKm returns the great-circle distance between two points in
// kilometers.
func HaversineKm(a, b Location) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// NearestFarm finds the farm closest to the query point. It reports
// ok=false unless a farm lies strictly under NearestFarmMaxKm. On an
// exact distance tie the first farm in slice order wins, so the result
// is deterministic only while the farm list order is stable.
func NearestFarm(farms []Farm, point Location) (Farm, float64, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, f := range farms {
		d := HaversineKm(point, f.Location)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 || bestDist >= NearestFarmMaxKm {
		return Farm{}, bestDist, false
	}
	return farms[best], bestDist, true
}

// ValidateCoordinates rejects out-of-range latitude/longitude before a
// location search is allowed to proceed.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return ValidationError("", fmt.Sprintf("latitude %v out of range [-90, 90]", lat))
	}
	if lng < -180 || lng > 180 {
		return ValidationError("", fmt.Sprintf("longitude %v out of range [-180, 180]", lng))
	}
	return nil
}

// BoundingExtent computes the bounding box of the geometry's positions.
// ok is false when the geometry is absent, malformed, or empty.
func (g Geometry) BoundingExtent() (GridBounds, bool) {
	var rings [][][]float64
	switch g.Type {
	case "Polygon":
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return GridBounds{}, false
		}
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return GridBounds{}, false
		}
		for _, p := range polys {
			rings = append(rings, p...)
		}
	default:
		return GridBounds{}, false
	}

	found := false
	b := GridBounds{North: -90, South: 90, East: -180, West: 180}
	for _, ring := range rings {
		for _, pos := range ring {
			if len(pos) < 2 {
				continue
			}
			lng, lat := pos[0], pos[1]
			b.North = math.Max(b.North, lat)
			b.South = math.Min(b.South, lat)
			b.East = math.Max(b.East, lng)
			b.West = math.Min(b.West, lng)
			found = true
		}
	}
	if !found {
		return GridBounds{}, false
	}
	return b, true
}

// Center returns the midpoint of a bounding box.
func (b GridBounds) Center() Location {
	return Location{
		Lat: (b.North + b.South) / 2,
		Lng: (b.East + b.West) / 2,
	}
}

// RepresentativePoint picks the point used for per-field dataset queries:
// the centroid of the field's bounding extent when the geometry is
// well-formed, else the owning farm's location.
func RepresentativePoint(f FieldBoundary, farm Farm) Location {
	if b, ok := f.Geometry.BoundingExtent(); ok {
		return b.Center()
	}
	return farm.Location
}
