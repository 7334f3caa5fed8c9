package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedPolyline is returned when an encoded polyline is truncated or
// contains bytes outside the encoding alphabet.
var ErrMalformedPolyline = errors.New("malformed polyline")

const polylinePrecision = 1e5

// DecodePolyline decodes a polyline in the Google encoded polyline format at
// 1e-5 degree precision. An empty string decodes to an empty slice.
func DecodePolyline(encoded string) ([]Point, error) {
	points := make([]Point, 0, len(encoded)/4)
	var lat, lng int64
	for i := 0; i < len(encoded); {
		dLat, n, err := decodeValue(encoded, i)
		if err != nil {
			return nil, err
		}
		i = n
		dLng, n, err := decodeValue(encoded, i)
		if err != nil {
			return nil, err
		}
		i = n

		lat += dLat
		lng += dLng
		points = append(points, Point{
			Lat: float64(lat) / polylinePrecision,
			Lng: float64(lng) / polylinePrecision,
		})
	}
	return points, nil
}

// decodeValue reads one zigzag-encoded delta starting at offset i and returns
// it together with the offset of the next value.
func decodeValue(s string, i int) (int64, int, error) {
	var result int64
	var shift uint
	for {
		if i >= len(s) {
			return 0, 0, fmt.Errorf("%w: truncated at byte %d", ErrMalformedPolyline, i)
		}
		b := int64(s[i]) - 63
		if b < 0 || b > 63 {
			return 0, 0, fmt.Errorf("%w: invalid byte %q at %d", ErrMalformedPolyline, s[i], i)
		}
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
		if shift > 60 {
			return 0, 0, fmt.Errorf("%w: value overflow at byte %d", ErrMalformedPolyline, i)
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}

// EncodePolyline encodes points in the Google encoded polyline format. It is
// the inverse of DecodePolyline for points at 1e-5 degree precision.
func EncodePolyline(points []Point) string {
	var b strings.Builder
	var prevLat, prevLng int64
	for _, p := range points {
		lat := int64(math.Round(p.Lat * polylinePrecision))
		lng := int64(math.Round(p.Lng * polylinePrecision))
		encodeValue(&b, lat-prevLat)
		encodeValue(&b, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return b.String()
}

func encodeValue(b *strings.Builder, delta int64) {
	v := delta << 1
	if delta < 0 {
		v = ^v
	}
	for v >= 0x20 {
		b.WriteByte(byte((0x20 | (v & 0x1f)) + 63))
		v >>= 5
	}
	b.WriteByte(byte(v + 63))
}
