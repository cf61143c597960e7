package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMeters(t *testing.T) {
	cases := []struct {
		name   string
		p1, p2 Position
		want   float64 // meters
		tol    float64
	}{
		{"same point", Position{10, 20}, Position{10, 20}, 0, 0.01},
		{"one hundredth degree longitude at equator", Position{0, 0}, Position{0, 0.01}, 1113.2, 1},
		{"one hundredth degree latitude", Position{0, 0}, Position{0.01, 0}, 1113.2, 1},
		{"short hop at mid latitude", Position{60, 25}, Position{60, 25.01}, 556.6, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DistanceMeters(tc.p1, tc.p2)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, tc.tol)
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Position{41.0082, 28.9784}
	b := Position{41.0151, 28.9795}
	d1, err := DistanceMeters(a, b)
	require.NoError(t, err)
	d2, err := DistanceMeters(b, a)
	require.NoError(t, err)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestWithinRadiusAgreesWithDistance(t *testing.T) {
	center := Position{0, 0}
	points := []Position{
		{0, 0},
		{0, 0.0001},
		{0, 0.00044}, // just inside 50m
		{0, 0.0005},  // just outside 50m
		{0, 0.01},    // ~1113m away
		{0.02, 0.02},
	}
	for _, p := range points {
		d, err := DistanceMeters(p, center)
		require.NoError(t, err)
		in, err := WithinRadius(p, center, 50)
		require.NoError(t, err)
		assert.Equal(t, d <= 50, in, "point %+v at %.2fm", p, d)
	}
}

func TestWithinRadiusRejectsFarPoint(t *testing.T) {
	// The 0.01 degree longitude offset is roughly 1113m, far outside a 50m fence.
	in, err := WithinRadius(Position{0, 0.01}, Position{0, 0}, 50)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestInvalidCoordinates(t *testing.T) {
	bad := []Position{
		{91, 0},
		{-90.5, 0},
		{0, 181},
		{0, -180.01},
		{math.NaN(), 0},
		{0, math.Inf(1)},
	}
	for _, p := range bad {
		err := p.Validate()
		assert.ErrorIs(t, err, ErrInvalidCoordinate, "position %+v", p)

		_, err = DistanceMeters(p, Position{0, 0})
		assert.ErrorIs(t, err, ErrInvalidCoordinate)

		_, err = WithinRadius(Position{0, 0}, p, 50)
		assert.ErrorIs(t, err, ErrInvalidCoordinate)
	}
}

func TestWithinRadiusRequiresPositiveRadius(t *testing.T) {
	_, err := WithinRadius(Position{0, 0}, Position{0, 0}, 0)
	assert.Error(t, err)
}
