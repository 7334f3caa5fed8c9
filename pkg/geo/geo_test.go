package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineIdentityAndSymmetry(t *testing.T) {
	points := []Point{
		{0, 0},
		{51.5074, -0.1278},
		{48.8566, 2.3522},
		{-33.8688, 151.2093},
		{90, 180},
		{-90, -180},
	}
	for _, a := range points {
		d, err := Haversine(a.Lat, a.Lng, a.Lat, a.Lng)
		require.NoError(t, err)
		assert.Zero(t, d, "distance from %v to itself", a)

		for _, b := range points {
			ab, err := Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
			require.NoError(t, err)
			ba, err := Haversine(b.Lat, b.Lng, a.Lat, a.Lng)
			require.NoError(t, err)
			assert.InDelta(t, ab, ba, 1e-6, "%v <-> %v", a, b)
		}
	}
}

func TestHaversineKnownDistances(t *testing.T) {
	d, err := Haversine(0, 0, 0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 111195, d, 1)

	// London to Paris.
	d, err = Haversine(51.5074, -0.1278, 48.8566, 2.3522)
	require.NoError(t, err)
	assert.InDelta(t, 343_500, d, 1_000)
}

func TestHaversineRejectsInvalidCoordinates(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
	}{
		{"lat1 too high", 90.0001, 0, 0, 0},
		{"lat2 too low", 0, 0, -91, 0},
		{"lng1 too high", 0, 180.5, 0, 0},
		{"lng2 too low", 0, 0, 0, -200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Haversine(tc.lat1, tc.lng1, tc.lat2, tc.lng2)
			assert.ErrorIs(t, err, ErrInvalidCoordinate)
		})
	}
}
