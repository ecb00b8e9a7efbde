package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// IsValid reports whether the discount type is a known member.
func (t DiscountType) IsValid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Type controls who may redeem a coupon.
type Type string

const (
	// TypePublic coupons are redeemable by any user.
	TypePublic Type = "public"
	// TypePrivate coupons are redeemable only by their assigned users.
	TypePrivate Type = "private"
)

// IsValid reports whether the coupon type is a known member.
func (t Type) IsValid() bool {
	return t == TypePublic || t == TypePrivate
}

// Visibility controls where a coupon is surfaced in the storefront.
type Visibility string

const (
	VisibilityHidden      Visibility = "hidden"
	VisibilityFeatured    Visibility = "featured"
	VisibilityLandingPage Visibility = "landing_page"
)

// IsValid reports whether the visibility is a known member.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityHidden, VisibilityFeatured, VisibilityLandingPage:
		return true
	}
	return false
}

// ErrNotFound is returned when a requested coupon does not exist.
var ErrNotFound = errors.New("coupon not found")

// Sentinel errors surfaced by Repository.Reserve when a usage cap is hit.
var (
	ErrUsageLimitReached     = errors.New("coupon usage limit reached")
	ErrUserUsageLimitReached = errors.New("coupon per-user usage limit reached")
)

// Coupon is an immutable promotional discount rule. Instances are produced
// by Builder.Build, which guarantees every invariant holds.
type Coupon struct {
	Code        string
	Description string

	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MinOrderValue decimal.Decimal // zero means no minimum
	MaxDiscount   decimal.Decimal // zero means uncapped; only meaningful for percentage

	UsageLimit        int // zero means unlimited
	UsageLimitPerUser int // zero means unlimited

	StartDate time.Time
	EndDate   time.Time

	// Empty sets mean the coupon applies to the whole catalog.
	Categories []string
	Products   []string

	Type          Type
	Visibility    Visibility
	AssignedUsers []string

	Active bool
}

// NormalizeCode upper-cases a coupon code for case-insensitive matching.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidationError aggregates every violated build rule so callers can report
// the complete list instead of fixing one problem per round trip.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid coupon: " + strings.Join(e.Violations, "; ")
}

// Reason identifies the first eligibility rule an order failed.
type Reason string

const (
	ReasonInactive       Reason = "inactive"
	ReasonOutsideWindow  Reason = "outside_window"
	ReasonNotAssigned    Reason = "not_assigned"
	ReasonMinOrderValue  Reason = "min_order_value"
	ReasonNotApplicable  Reason = "not_applicable"
	ReasonUsageLimit     Reason = "usage_limit_reached"
	ReasonUserUsageLimit Reason = "user_usage_limit_reached"
)

// IneligibleError is a business-rule rejection carrying the first failed rule.
type IneligibleError struct {
	Code   string
	Reason Reason
}

func (e *IneligibleError) Error() string {
	return "coupon " + e.Code + " not eligible: " + string(e.Reason)
}

// Discount holds the computed discount amount and the coupon description.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// OrderContext describes the cart an eligibility decision is made against.
type OrderContext struct {
	UserID     string
	Subtotal   decimal.Decimal
	Categories []string
	Products   []string
}

// Repository provides lookup and mutation of coupons.
//
// Reserve must check both usage caps and consume one slot as a single atomic
// unit against the store; a plain read-check-increment sequence would allow
// redemption beyond the limits under concurrency. It returns
// ErrUsageLimitReached or ErrUserUsageLimitReached when a cap is exhausted.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Reserve(ctx context.Context, code, userID string) error
}
