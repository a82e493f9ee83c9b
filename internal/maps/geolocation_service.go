package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"delitrack/internal/modules/geosource"
	"delitrack/internal/types"
)

// GeolocationService locates the device from its IP address (and any access
// points the caller supplies) using the Google Geolocation API. It is the
// fallback provider for riders without a GPS receiver.
type GeolocationService struct {
	client  *maps.Client
	wifiAPs []maps.WiFiAccessPoint
}

func NewGeolocationService(apiKey string, opts ...maps.ClientOption) (*GeolocationService, error) {
	client, err := newClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &GeolocationService{client: client}, nil
}

// WithAccessPoints adds nearby WiFi access points to every request.
func (g *GeolocationService) WithAccessPoints(aps ...maps.WiFiAccessPoint) *GeolocationService {
	g.wifiAPs = append(g.wifiAPs, aps...)
	return g
}

func (g *GeolocationService) Locate(ctx context.Context) (geosource.Fix, error) {
	req := &maps.GeolocationRequest{
		ConsiderIP:       true,
		WiFiAccessPoints: g.wifiAPs,
	}
	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return geosource.Fix{}, fmt.Errorf("%w: %v", geosource.ErrTimeout, err)
		}
		return geosource.Fix{}, fmt.Errorf("%w: %v", geosource.ErrPositionUnavailable, err)
	}
	p := types.Point{Lat: resp.Location.Lat, Lng: resp.Location.Lng}
	if !p.Valid() {
		return geosource.Fix{}, geosource.ErrPositionUnavailable
	}
	return geosource.Fix{Point: p, Accuracy: resp.Accuracy, At: time.Now()}, nil
}
