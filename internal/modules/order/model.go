// README: Order read model and status definitions as seen by delivery tracking.
package order

import (
	"strconv"
	"strings"
	"time"

	"delitrack/internal/types"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

var statusText = map[Status]string{
	StatusPending:        "Order Placed",
	StatusConfirmed:      "Confirmed",
	StatusPreparing:      "Preparing",
	StatusOutForDelivery: "Out for Delivery",
	StatusDelivered:      "Delivered",
	StatusCancelled:      "Cancelled",
}

// Known reports whether s is one of the order lifecycle statuses.
func (s Status) Known() bool {
	_, ok := statusText[s]
	return ok
}

// Text is the customer-facing label; unknown statuses are shown verbatim.
func (s Status) Text() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return string(s)
}

// ShowsRoute reports whether the restaurant-to-customer route is drawn for s.
func (s Status) ShowsRoute() bool {
	return s == StatusOutForDelivery || s == StatusDelivered
}

type Address struct {
	Street   string   `json:"street"`
	Landmark string   `json:"landmark,omitempty"`
	City     string   `json:"city"`
	State    string   `json:"state"`
	ZipCode  string   `json:"zipCode"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
}

// Full joins the non-empty address parts with ", ".
func (a Address) Full() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Street, a.Landmark, a.City, a.State, a.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Coordinates returns the precise coordinate captured at checkout, if any.
func (a Address) Coordinates() (types.Point, bool) {
	if a.Lat == nil || a.Lng == nil {
		return types.Point{}, false
	}
	p := types.Point{Lat: *a.Lat, Lng: *a.Lng}
	return p, p.Valid()
}

type Order struct {
	ID              types.ID  `json:"id"`
	OrderNumber     int64     `json:"orderNumber,omitempty"`
	CustomerName    string    `json:"customerName"`
	Status          Status    `json:"orderStatus"`
	DeliveryAddress *Address  `json:"deliveryAddress,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TrackingKey names the order's tracking room. Riders identify orders by
// their number, so the number wins when present.
func (o *Order) TrackingKey() string {
	if o.OrderNumber > 0 {
		return strconv.FormatInt(o.OrderNumber, 10)
	}
	return string(o.ID)
}
