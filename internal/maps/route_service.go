package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"delitrack/internal/modules/route"
	"delitrack/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string, opts ...maps.ClientOption) (*RouteService, error) {
	client, err := newClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &RouteService{client: client}, nil
}

func newClient(apiKey string, opts ...maps.ClientOption) (*maps.Client, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// Directions returns the driving path between start and end, decoded from the
// overview polyline, with distance and duration summed over all legs.
func (s *RouteService) Directions(ctx context.Context, start, end types.Point) (route.Directions, error) {
	r := &maps.DirectionsRequest{
		Origin:      start.LatLng(),
		Destination: end.LatLng(),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return route.Directions{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return route.Directions{}, route.ErrNoRoute
	}

	best := routes[0]
	path, err := best.OverviewPolyline.Decode()
	if err != nil {
		return route.Directions{}, fmt.Errorf("%w: %v", route.ErrBadResponse, err)
	}

	out := route.Directions{Points: make([]types.Point, 0, len(path))}
	for _, ll := range path {
		out.Points = append(out.Points, types.Point{Lat: ll.Lat, Lng: ll.Lng})
	}
	for _, leg := range best.Legs {
		out.DistanceMeters += float64(leg.Distance.Meters)
		out.DurationSeconds += leg.Duration.Seconds()
	}
	return out, nil
}
