package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopfront/commerce/internal/domain/order"
)

const (
	orderColumns = `id, number, user_id, items, status, payment_status,
		payment_confirmed_by, tracking_number, shipping_provider,
		cancellation_reason, return_reason, audit, version, created_at, updated_at`

	getOrderByIDSQL     = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`

	updateOrderSQL = `UPDATE orders SET
		status = $2, payment_status = $3, payment_confirmed_by = $4,
		tracking_number = $5, shipping_provider = $6,
		cancellation_reason = $7, return_reason = $8,
		audit = $9, version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $11`

	stalePendingSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items and
// the audit trail live in JSONB columns; the version column backs the
// optimistic concurrency check.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID loads a single order by its opaque id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByNumber loads a single order by its human-facing number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order %q: %w", arg, err)
	}
	return &o, nil
}

// Update persists a mutated order, guarded by the optimistic version check.
// Zero rows affected means either a version conflict or a missing order; the
// two are distinguished with an existence probe.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	auditJSON, err := json.Marshal(o.Audit)
	if err != nil {
		return fmt.Errorf("marshaling order audit: %w", err)
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, o.Status, o.PaymentStatus, o.PaymentConfirmedBy,
		o.TrackingNumber, o.ShippingProvider,
		o.CancellationReason, o.ReturnReason,
		auditJSON, o.UpdatedAt, o.Version,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %q: %w", o.ID, err)
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrVersionConflict
	}

	o.Version++
	return nil
}

// ListByUser returns one page of the given user's orders.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, f order.ListFilter) (*order.Page, error) {
	return r.list(ctx, userID, f)
}

// List returns one page across all users.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) (*order.Page, error) {
	return r.list(ctx, "", f)
}

func (r *OrderRepository) list(ctx context.Context, userID string, f order.ListFilter) (*order.Page, error) {
	where := ` WHERE ($1 = '' OR user_id = $1)
		AND ($2 = '' OR status = $2)
		AND ($3 = '' OR payment_status = $3)`
	args := []any{userID, string(f.Status), string(f.PaymentStatus)}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	// SortBy and SortOrder are normalized to a fixed vocabulary by the
	// service, never interpolated from raw request input.
	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(` ORDER BY %s %s LIMIT $4 OFFSET $5`, f.SortBy, f.SortOrder)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}

	return &order.Page{
		Orders: orders,
		Total:  total,
		Page:   f.Page,
		Limit:  f.Limit,
	}, nil
}

// StalePending returns every pending order created before the cutoff.
func (r *OrderRepository) StalePending(ctx context.Context, olderThan time.Time) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, stalePendingSQL, olderThan)
	if err != nil {
		return nil, fmt.Errorf("querying stale pending orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning stale pending orders: %w", err)
	}
	return orders, nil
}

// Stats aggregates order counts and total spend, optionally scoped to one
// user (empty userID means all users).
func (r *OrderRepository) Stats(ctx context.Context, userID string) (*order.Stats, error) {
	const statsSQL = `SELECT status, count(*),
		COALESCE(sum((SELECT sum((item->>'quantity')::bigint * (item->>'unit_price')::numeric)
			FROM jsonb_array_elements(items) AS item)), 0)
		FROM orders
		WHERE ($1 = '' OR user_id = $1)
		GROUP BY status`

	rows, err := r.pool.Query(ctx, statsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("querying order stats: %w", err)
	}
	defer rows.Close()

	stats := &order.Stats{ByStatus: make(map[order.Status]int64)}
	for rows.Next() {
		var (
			status string
			count  int64
			spent  decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &spent); err != nil {
			return nil, fmt.Errorf("scanning order stats: %w", err)
		}
		stats.ByStatus[order.Status(status)] = count
		stats.TotalOrders += count
		stats.TotalSpent = stats.TotalSpent.Add(spent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading order stats: %w", err)
	}
	return stats, nil
}

// Revenue aggregates paid-order revenue over the inclusive window [from, to].
func (r *OrderRepository) Revenue(ctx context.Context, from, to time.Time) (*order.Revenue, error) {
	const revenueSQL = `SELECT count(*),
		COALESCE(sum((SELECT sum((item->>'quantity')::bigint * (item->>'unit_price')::numeric)
			FROM jsonb_array_elements(items) AS item)), 0)
		FROM orders
		WHERE payment_status = 'paid'
		AND created_at >= $1 AND created_at < $2 + interval '1 day'`

	rev := &order.Revenue{From: from, To: to}
	if err := r.pool.QueryRow(ctx, revenueSQL, from, to).Scan(&rev.Orders, &rev.Total); err != nil {
		return nil, fmt.Errorf("querying revenue: %w", err)
	}
	return rev, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o          order.Order
		itemsJSON  []byte
		auditJSON  []byte
		confirmer  *string
		tracking   *string
		provider   *string
		cancReason *string
		retReason  *string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &itemsJSON, &o.Status, &o.PaymentStatus,
		&confirmer, &tracking, &provider,
		&cancReason, &retReason, &auditJSON, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if len(auditJSON) > 0 {
		if err := json.Unmarshal(auditJSON, &o.Audit); err != nil {
			return order.Order{}, fmt.Errorf("unmarshaling order audit: %w", err)
		}
	}

	o.PaymentConfirmedBy = deref(confirmer)
	o.TrackingNumber = deref(tracking)
	o.ShippingProvider = deref(provider)
	o.CancellationReason = deref(cancReason)
	o.ReturnReason = deref(retReason)
	return o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
