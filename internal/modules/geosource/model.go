// README: Geolocation source value objects, error kinds and provider contracts.
package geosource

import (
	"context"
	"errors"
	"time"

	"delitrack/internal/types"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("location request timed out")
	ErrAlreadyRunning      = errors.New("geolocation source is already running")
	ErrMissingOrder        = errors.New("order id is required")
)

// Fix is one reading from a positioning device.
type Fix struct {
	Point    types.Point
	Accuracy float64
	At       time.Time
}

// Provider returns a single fix per call.
type Provider interface {
	Locate(ctx context.Context) (Fix, error)
}

// Watcher reports fixes continuously until ctx is done or a fatal error
// occurs. A nil return means ctx was cancelled.
type Watcher interface {
	Watch(ctx context.Context, onFix func(Fix)) error
}

// Publisher forwards a sample to the relay. Implementations must not retry.
type Publisher interface {
	Publish(ctx context.Context, sample types.PositionSample) error
}

// UserMessage turns a source error into text a rider can act on.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Location permission denied. Please allow location access."
	case errors.Is(err, ErrPositionUnavailable):
		return "Location information is unavailable."
	case errors.Is(err, ErrTimeout):
		return "Location request timed out."
	case errors.Is(err, ErrMissingOrder):
		return "Please enter an order number."
	default:
		return "An unknown error occurred."
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrPositionUnavailable):
		return "position_unavailable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "unknown"
	}
}
