package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"delitrack/internal/modules/route"
	"delitrack/internal/types"
)

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client *maps.Client
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey string, opts ...maps.ClientOption) (*PlacesService, error) {
	client, err := newClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &PlacesService{client: client}, nil
}

// PlaceLocation resolves a place ID to its coordinate. Only the geometry field
// is requested to keep the Places billing SKU minimal.
func (s *PlacesService) PlaceLocation(ctx context.Context, placeID string) (types.Point, error) {
	r := &maps.PlaceDetailsRequest{
		PlaceID: placeID,
		Fields:  []maps.PlaceDetailsFieldMask{maps.PlaceDetailsFieldMaskGeometry},
	}
	res, err := s.client.PlaceDetails(ctx, r)
	if err != nil {
		return types.Point{}, fmt.Errorf("places api error: %w", err)
	}
	p := types.Point{Lat: res.Geometry.Location.Lat, Lng: res.Geometry.Location.Lng}
	if !p.Valid() {
		return types.Point{}, route.ErrPlaceNotFound
	}
	return p, nil
}
