package mapview

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delitrack/internal/types"
)

func TestSceneSDK_RendersGeoJSON(t *testing.T) {
	var last *geojson.FeatureCollection
	sdk := &SceneSDK{OnChange: func(_ string, fc *geojson.FeatureCollection) { last = fc }}
	a := NewAdapter(StaticLoader(sdk), Options{Logger: zerolog.Nop()})
	require.NoError(t, a.CreateMap(context.Background(), "admin", restaurant, 14))

	a.PlaceMarker(restaurant, StyleRestaurant)
	a.PlaceMarker(destination, StyleDestination)
	a.UpdateRiderMarker(types.Point{Lat: 12.995, Lng: 77.66})
	a.DrawRoute([]types.Point{{Lat: 12.995, Lng: 77.66}, destination}, "")
	a.FitBounds([]types.Point{restaurant, destination})

	require.NotNil(t, last)
	require.Len(t, last.Features, 4)
	assert.Equal(t, "restaurant", last.Features[0].Properties["kind"])
	assert.Equal(t, "#22C55E", last.Features[1].Properties["color"])
	assert.Equal(t, "route", last.Features[3].Properties["kind"])
	assert.Equal(t, "LineString", last.Features[3].Geometry.GeoJSONType())
	require.Len(t, last.BBox, 4)
	assert.Equal(t, restaurant.Lng, last.BBox[0])
	assert.Equal(t, destination.Lat, last.BBox[3])
	assert.Equal(t, 80, last.ExtraMembers["padding"])

	a.UpdateRiderMarker(types.Point{Lat: 12.998, Lng: 77.662})
	riders := 0
	for _, f := range last.Features {
		if f.Properties["kind"] == "rider" {
			riders++
		}
	}
	assert.Equal(t, 1, riders)

	raw, err := json.Marshal(last)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"FeatureCollection"`)
	assert.Contains(t, string(raw), `"zoom":14`)

	a.Destroy()
	assert.Empty(t, last.Features)
	assert.Equal(t, true, last.ExtraMembers["removed"])
}
