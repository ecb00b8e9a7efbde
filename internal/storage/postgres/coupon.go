package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopfront/commerce/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, description, discount_type, discount_value,
		min_order_value, max_discount, usage_limit, usage_limit_per_user,
		start_date, end_date, categories, products, type, visibility,
		assigned_users, active
		FROM coupons WHERE code = UPPER($1)`

	createCouponSQL = `INSERT INTO coupons (code, description, discount_type,
		discount_value, min_order_value, max_discount, usage_limit,
		usage_limit_per_user, start_date, end_date, categories, products,
		type, visibility, assigned_users, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	// The WHERE clause makes the limit check and the increment one atomic
	// statement; zero rows affected means the global cap is exhausted.
	reserveGlobalSQL = `UPDATE coupons SET uses = uses + 1
		WHERE code = $1 AND (usage_limit = 0 OR uses < usage_limit)`

	// Same shape for the per-user counter: insert-or-increment guarded by
	// the per-user cap read from the coupon row.
	reserveUserSQL = `INSERT INTO coupon_usages (code, user_id, uses)
		VALUES ($1, $2, 1)
		ON CONFLICT (code, user_id) DO UPDATE SET uses = coupon_usages.uses + 1
		WHERE (SELECT usage_limit_per_user FROM coupons WHERE code = $1) = 0
		OR coupon_usages.uses < (SELECT usage_limit_per_user FROM coupons WHERE code = $1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive; codes are
// stored upper-cased). Returns coupon.ErrNotFound when absent.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Create persists a new coupon definition.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.Code, c.Description, c.DiscountType, c.DiscountValue,
		c.MinOrderValue, c.MaxDiscount, c.UsageLimit, c.UsageLimitPerUser,
		c.StartDate, c.EndDate, c.Categories, c.Products,
		c.Type, c.Visibility, c.AssignedUsers, c.Active,
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Reserve consumes one usage slot for the coupon, checking both the global
// and the per-user cap inside a single transaction. Each cap check is one
// conditional statement, so concurrent redemptions can never push usage past
// a limit; losing either condition rolls the whole reservation back.
func (r *CouponRepository) Reserve(ctx context.Context, code, userID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning reservation for coupon %q: %w", code, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, reserveGlobalSQL, code)
	if err != nil {
		return fmt.Errorf("reserving global slot for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}

	tag, err = tx.Exec(ctx, reserveUserSQL, code, userID)
	if err != nil {
		return fmt.Errorf("reserving user slot for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUserUsageLimitReached
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing reservation for coupon %q: %w", code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		cType        string
		visibility   string
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &c.DiscountValue,
		&c.MinOrderValue, &c.MaxDiscount, &c.UsageLimit, &c.UsageLimitPerUser,
		&c.StartDate, &c.EndDate, &c.Categories, &c.Products,
		&cType, &visibility, &c.AssignedUsers, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.Type = coupon.Type(cType)
	c.Visibility = coupon.Visibility(visibility)
	return c, err
}
