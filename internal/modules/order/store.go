// README: Read-only order lookup backed by PostgreSQL. The ordering system owns the table.
package order

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectOrder = `
    SELECT id, order_number, customer_name, order_status,
           delivery_street, delivery_landmark, delivery_city, delivery_state, delivery_zip,
           delivery_lat, delivery_lng,
           created_at, updated_at
    FROM orders`

// Get finds an order by id, or by order number when key is numeric.
func (s *Store) Get(ctx context.Context, key string) (*Order, error) {
	var row pgx.Row
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		row = s.db.QueryRow(ctx, selectOrder+` WHERE order_number = $1 OR id = $2`, n, key)
	} else {
		row = s.db.QueryRow(ctx, selectOrder+` WHERE id = $1`, key)
	}
	return scanOrder(row)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var orderNumber *int64
	var street, landmark, city, state, zip *string
	var lat, lng *float64

	err := row.Scan(
		&o.ID, &orderNumber, &o.CustomerName, &o.Status,
		&street, &landmark, &city, &state, &zip,
		&lat, &lng,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if orderNumber != nil {
		o.OrderNumber = *orderNumber
	}
	if street != nil || city != nil || lat != nil {
		o.DeliveryAddress = &Address{
			Street:   deref(street),
			Landmark: deref(landmark),
			City:     deref(city),
			State:    deref(state),
			ZipCode:  deref(zip),
			Lat:      lat,
			Lng:      lng,
		}
	}
	return &o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
