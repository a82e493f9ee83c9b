// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"delitrack/internal/modules/order"
	"delitrack/internal/modules/relay"
	"delitrack/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidKey accepts order ids and numbers: short, no separators.
func isValidKey(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// parseLngLat reads the "lng,lat" form used by the directions endpoints.
func parseLngLat(v string) (types.Point, bool) {
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return types.Point{}, false
	}
	lng, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return types.Point{}, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	return p, p.Valid()
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest), errors.Is(err, order.ErrUnknownStatus), errors.Is(err, relay.ErrMissingOrder):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNoStore):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
