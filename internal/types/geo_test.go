package types

import "testing"

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"bengaluru", Point{Lat: 12.9906677, Lng: 77.6525905}, true},
		{"null island", Point{}, false},
		{"lat out of range", Point{Lat: 91, Lng: 10}, false},
		{"lng out of range", Point{Lat: 10, Lng: -181}, false},
		{"edge", Point{Lat: -90, Lng: 180}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPointFormatting(t *testing.T) {
	p := Point{Lat: 12.5, Lng: 77.25}
	if got := p.LngLat(); got != "77.250000,12.500000" {
		t.Errorf("LngLat() = %q", got)
	}
	if got := p.LatLng(); got != "12.500000,77.250000" {
		t.Errorf("LatLng() = %q", got)
	}
}
