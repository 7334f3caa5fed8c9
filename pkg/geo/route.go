package geo

import "math"

// DefaultToleranceMeters is the default reuse tolerance for route matching.
const DefaultToleranceMeters = 100.0

const metersPerDegreeLat = 111320.0

// BoundingBox is an axis-aligned box in degrees.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// BoundsOf returns the smallest box containing all points.
func BoundsOf(points ...Point) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}
	bb := BoundingBox{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLng: points[0].Lng, MaxLng: points[0].Lng,
	}
	for _, p := range points[1:] {
		bb.MinLat = math.Min(bb.MinLat, p.Lat)
		bb.MaxLat = math.Max(bb.MaxLat, p.Lat)
		bb.MinLng = math.Min(bb.MinLng, p.Lng)
		bb.MaxLng = math.Max(bb.MaxLng, p.Lng)
	}
	return bb
}

// Pad grows the box by roughly meters on every side, clamped to valid
// coordinate ranges.
func (bb BoundingBox) Pad(meters float64) BoundingBox {
	dLat := meters / metersPerDegreeLat
	cos := math.Cos(radians((bb.MinLat + bb.MaxLat) / 2))
	dLng := 180.0
	if cos > 1e-6 {
		dLng = math.Min(180, dLat/cos)
	}
	return BoundingBox{
		MinLat: math.Max(-90, bb.MinLat-dLat),
		MaxLat: math.Min(90, bb.MaxLat+dLat),
		MinLng: math.Max(-180, bb.MinLng-dLng),
		MaxLng: math.Min(180, bb.MaxLng+dLng),
	}
}

// InBoundingBox reports whether p lies inside bb, edges included.
func InBoundingBox(p Point, bb BoundingBox) bool {
	return bb.MinLat <= p.Lat && p.Lat <= bb.MaxLat &&
		bb.MinLng <= p.Lng && p.Lng <= bb.MaxLng
}

// OnRoute decodes polyline and reports whether p is within tolerance meters
// of one of its vertices.
//
// Only vertices are considered, so a point between two sparse vertices can be
// reported as off the route. NearRoute measures distance to the segments.
func OnRoute(p Point, polyline string, tolerance float64) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	vertices, err := DecodePolyline(polyline)
	if err != nil {
		return false, err
	}
	for _, v := range vertices {
		if haversine(v, p) <= tolerance {
			return true, nil
		}
	}
	return false, nil
}

// NearRoute is like OnRoute but measures the distance from p to each segment
// of the route rather than to its vertices only.
func NearRoute(p Point, polyline string, tolerance float64) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	vertices, err := DecodePolyline(polyline)
	if err != nil {
		return false, err
	}
	switch len(vertices) {
	case 0:
		return false, nil
	case 1:
		return haversine(vertices[0], p) <= tolerance, nil
	}
	for i := 1; i < len(vertices); i++ {
		if segmentDistance(p, vertices[i-1], vertices[i]) <= tolerance {
			return true, nil
		}
	}
	return false, nil
}

// segmentDistance approximates the distance in meters from p to segment ab
// using an equirectangular projection centred on p. The projection is only
// used to find the closest point on the segment; the final distance is a
// great-circle one.
func segmentDistance(p, a, b Point) float64 {
	cos := math.Cos(radians(p.Lat))
	ax, ay := (a.Lng-p.Lng)*cos, a.Lat-p.Lat
	bx, by := (b.Lng-p.Lng)*cos, b.Lat-p.Lat
	dx, dy := bx-ax, by-ay

	t := 0.0
	if l2 := dx*dx + dy*dy; l2 > 0 {
		t = math.Max(0, math.Min(1, -(ax*dx+ay*dy)/l2))
	}
	closest := Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
	return haversine(p, closest)
}
