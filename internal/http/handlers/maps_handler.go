// README: Directions and place-details proxy so browsers never call the maps provider directly.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"delitrack/internal/modules/route"
)

type MapsHandler struct {
	directions route.DirectionsProvider
	places     route.PlaceResolver
}

func NewMapsHandler(directions route.DirectionsProvider, places route.PlaceResolver) *MapsHandler {
	return &MapsHandler{directions: directions, places: places}
}

type proxyFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *MapsHandler) Directions(c *gin.Context) {
	start, ok1 := parseLngLat(c.Query("start"))
	end, ok2 := parseLngLat(c.Query("end"))
	if !ok1 || !ok2 {
		writeJSON(c, http.StatusBadRequest, proxyFailure{Error: "start and end must be lng,lat"})
		return
	}
	if h.directions == nil {
		writeJSON(c, http.StatusServiceUnavailable, proxyFailure{Error: route.ErrNoProvider.Error()})
		return
	}

	d, err := h.directions.Directions(c.Request.Context(), start, end)
	if err != nil {
		_ = c.Error(err)
		status := http.StatusBadGateway
		if errors.Is(err, route.ErrNoRoute) {
			status = http.StatusNotFound
		}
		writeJSON(c, status, proxyFailure{Error: err.Error()})
		return
	}

	var resp route.DirectionsResponse
	resp.Success = true
	r := route.ProxyRoute{DistanceMeters: d.DistanceMeters, DurationSeconds: d.DurationSeconds}
	r.Geometry.Coordinates = make([][]float64, 0, len(d.Points))
	for _, p := range d.Points {
		r.Geometry.Coordinates = append(r.Geometry.Coordinates, []float64{p.Lng, p.Lat})
	}
	resp.Data.Routes = []route.ProxyRoute{r}
	writeJSON(c, http.StatusOK, resp)
}

type placeDetails struct {
	Success bool `json:"success"`
	Data    struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"data"`
}

func (h *MapsHandler) PlaceDetails(c *gin.Context) {
	id := c.Query("eloc")
	if id == "" {
		writeJSON(c, http.StatusBadRequest, proxyFailure{Error: "eloc is required"})
		return
	}
	if h.places == nil {
		writeJSON(c, http.StatusServiceUnavailable, proxyFailure{Error: route.ErrNoProvider.Error()})
		return
	}
	p, err := h.places.PlaceLocation(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		status := http.StatusBadGateway
		if errors.Is(err, route.ErrPlaceNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(c, status, proxyFailure{Error: err.Error()})
		return
	}
	var resp placeDetails
	resp.Success = true
	resp.Data.Latitude = p.Lat
	resp.Data.Longitude = p.Lng
	writeJSON(c, http.StatusOK, resp)
}
