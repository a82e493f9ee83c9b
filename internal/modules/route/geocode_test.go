package route

import (
	"math"
	"testing"

	"delitrack/internal/types"
)

var restaurant = types.Point{Lat: 12.9906677, Lng: 77.6525905}

func TestEstimateCoordinates_Deterministic(t *testing.T) {
	addr := "12 MG Road, Bengaluru, Karnataka, 560001"
	a := EstimateCoordinates(restaurant, addr)
	b := EstimateCoordinates(restaurant, addr)
	if a != b {
		t.Fatalf("same address produced %v and %v", a, b)
	}
}

func TestEstimateCoordinates_KnownHash(t *testing.T) {
	// "abc": ((97*31)+98)*31+99 = 96354 -> offset 354/50000
	got := EstimateCoordinates(restaurant, "abc")
	offset := 354.0 / 50000
	if math.Abs(got.Lat-(restaurant.Lat+0.01+offset)) > 1e-12 {
		t.Errorf("lat = %f", got.Lat)
	}
	if math.Abs(got.Lng-(restaurant.Lng+0.015+offset)) > 1e-12 {
		t.Errorf("lng = %f", got.Lng)
	}
}

func TestEstimateCoordinates_Empty(t *testing.T) {
	got := EstimateCoordinates(restaurant, "")
	if math.Abs(got.Lat-(restaurant.Lat+0.01)) > 1e-12 || math.Abs(got.Lng-(restaurant.Lng+0.015)) > 1e-12 {
		t.Errorf("empty address = %v", got)
	}
}

func TestEstimateCoordinates_StaysClose(t *testing.T) {
	for _, addr := range []string{"x", "Koramangala 5th Block", "ಬೆಂಗಳೂರು", "a very long street name that overflows the int32 hash many many times over"} {
		p := EstimateCoordinates(restaurant, addr)
		if d := DistanceKm(restaurant, p); d > 6 {
			t.Errorf("%q estimated %.2f km away", addr, d)
		}
	}
}
