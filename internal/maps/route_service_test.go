package maps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"delitrack/internal/modules/route"
	"delitrack/internal/types"
)

func newMapsServer(t *testing.T, body any) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRouteService_Directions(t *testing.T) {
	path := []maps.LatLng{{Lat: 12.99067, Lng: 77.65259}, {Lat: 12.995, Lng: 77.66}, {Lat: 13.0051, Lng: 77.6698}}
	body := map[string]any{
		"status": "OK",
		"routes": []any{map[string]any{
			"overview_polyline": map[string]any{"points": maps.Encode(path)},
			"legs": []any{
				map[string]any{"distance": map[string]any{"value": 2000, "text": "2 km"}, "duration": map[string]any{"value": 300, "text": "5 mins"}},
				map[string]any{"distance": map[string]any{"value": 1456, "text": "1.5 km"}, "duration": map[string]any{"value": 329, "text": "5 mins"}},
			},
		}},
	}
	svc, err := NewRouteService("test-key", maps.WithBaseURL(newMapsServer(t, body)))
	require.NoError(t, err)

	d, err := svc.Directions(context.Background(), types.Point{Lat: 12.99067, Lng: 77.65259}, types.Point{Lat: 13.0051, Lng: 77.6698})
	require.NoError(t, err)

	require.Len(t, d.Points, 3)
	assert.InDelta(t, 12.995, d.Points[1].Lat, 1e-5)
	assert.InDelta(t, 77.66, d.Points[1].Lng, 1e-5)
	assert.Equal(t, 3456.0, d.DistanceMeters)
	assert.Equal(t, 629.0, d.DurationSeconds)
}

func TestRouteService_NoRoutes(t *testing.T) {
	svc, err := NewRouteService("test-key", maps.WithBaseURL(newMapsServer(t, map[string]any{"status": "OK", "routes": []any{}})))
	require.NoError(t, err)

	_, err = svc.Directions(context.Background(), types.Point{Lat: 1, Lng: 1}, types.Point{Lat: 2, Lng: 2})
	assert.True(t, errors.Is(err, route.ErrNoRoute))
}
