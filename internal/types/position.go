package types

// PositionSample is one rider coordinate report for an order.
// Timestamp is Unix milliseconds taken when the sample was sent.
type PositionSample struct {
	OrderID   string  `json:"orderId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

func (s PositionSample) Point() Point {
	return Point{Lat: s.Lat, Lng: s.Lng}
}
