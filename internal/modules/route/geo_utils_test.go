package route

import (
	"math"
	"testing"

	"delitrack/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			lat1:      12.9906677, lng1: 77.6525905,
			lat2:      12.9906677, lng2: 77.6525905,
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "restaurant to Indiranagar (~2km)",
			lat1:      12.9906677, lng1: 77.6525905,
			lat2:      12.9784, lng2: 77.6408,
			wantKm:    1.9,
			tolerance: 0.5,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			lat1:      40.7128, lng1: -74.0060,
			lat2:      34.0522, lng2: -118.2437,
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("haversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	d1 := haversineKm(12.0, 77.0, 13.0, 78.0)
	d2 := haversineKm(13.0, 78.0, 12.0, 77.0)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestPositionOnRoute(t *testing.T) {
	start := types.Point{Lat: 10, Lng: 20}
	end := types.Point{Lat: 20, Lng: 40}

	if got := PositionOnRoute(start, end, 0); got != start {
		t.Errorf("0%% = %v, want %v", got, start)
	}
	if got := PositionOnRoute(start, end, 100); got != end {
		t.Errorf("100%% = %v, want %v", got, end)
	}
	mid := PositionOnRoute(start, end, 50)
	if mid.Lat != 15 || mid.Lng != 30 {
		t.Errorf("50%% = %v", mid)
	}
}

func TestRounding(t *testing.T) {
	if got := roundKm(1.2549); got != 1.3 {
		t.Errorf("roundKm(1.2549) = %v", got)
	}
	if got := roundKm(0.04); got != 0 {
		t.Errorf("roundKm(0.04) = %v", got)
	}
	if got := roundMinutes(7.5); got != 8 {
		t.Errorf("roundMinutes(7.5) = %v", got)
	}
	if got := roundMinutes(7.49); got != 7 {
		t.Errorf("roundMinutes(7.49) = %v", got)
	}
}
