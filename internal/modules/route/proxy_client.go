// README: HTTP client for the directions/place-details proxy.
package route

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"delitrack/internal/types"
)

// ProxyClient talks to the backend proxy that fronts the directions provider;
// browsers cannot call the provider directly because of CORS.
type ProxyClient struct {
	baseURL string
	httpc   *http.Client
}

func NewProxyClient(baseURL string, timeout time.Duration) *ProxyClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &ProxyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// DirectionsResponse is the proxy's directions payload.
type DirectionsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Routes []ProxyRoute `json:"routes"`
	} `json:"data"`
}

type ProxyRoute struct {
	Geometry struct {
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometry"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// PlaceDetailsResponse is the proxy's place-details payload.
type PlaceDetailsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Latitude  flexFloat `json:"latitude"`
		Longitude flexFloat `json:"longitude"`
	} `json:"data"`
}

func (c *ProxyClient) Directions(ctx context.Context, start, end types.Point) (Directions, error) {
	q := url.Values{}
	q.Set("start", start.LngLat())
	q.Set("end", end.LngLat())

	var resp DirectionsResponse
	if err := c.get(ctx, "/directions?"+q.Encode(), &resp); err != nil {
		return Directions{}, err
	}
	if !resp.Success {
		return Directions{}, ErrUpstreamStatus
	}
	if len(resp.Data.Routes) == 0 {
		return Directions{}, ErrNoRoute
	}
	r := resp.Data.Routes[0]
	points := make([]types.Point, 0, len(r.Geometry.Coordinates))
	for _, c := range r.Geometry.Coordinates {
		if len(c) < 2 {
			return Directions{}, fmt.Errorf("%w: coordinate with %d values", ErrBadResponse, len(c))
		}
		// GeoJSON order: [lng, lat]
		points = append(points, types.Point{Lat: c[1], Lng: c[0]})
	}
	if len(points) < 2 {
		return Directions{}, fmt.Errorf("%w: route geometry has %d points", ErrBadResponse, len(points))
	}
	return Directions{
		Points:          points,
		DistanceMeters:  r.DistanceMeters,
		DurationSeconds: r.DurationSeconds,
	}, nil
}

func (c *ProxyClient) PlaceLocation(ctx context.Context, placeID string) (types.Point, error) {
	var resp PlaceDetailsResponse
	if err := c.get(ctx, "/place-details?eloc="+url.QueryEscape(placeID), &resp); err != nil {
		return types.Point{}, err
	}
	p := types.Point{Lat: float64(resp.Data.Latitude), Lng: float64(resp.Data.Longitude)}
	if !resp.Success || !p.Valid() {
		return types.Point{}, ErrPlaceNotFound
	}
	return p, nil
}

func (c *ProxyClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("proxy request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUpstreamStatus, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// flexFloat accepts numbers and numeric strings; the upstream sends both.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
