package coupon

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Builder accumulates coupon fields through chained setters and produces an
// immutable Coupon via Build. Setters only record state; Validate performs
// the authoritative whole-object check so the outcome never depends on the
// order setters were called in. A single builder is reusable via Reset.
type Builder struct {
	c        Coupon
	datesSet bool
}

// NewBuilder returns an empty coupon builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Code sets the coupon code. It is normalized to upper case by Build.
func (b *Builder) Code(code string) *Builder {
	b.c.Code = code
	return b
}

// Description sets the human-readable description.
func (b *Builder) Description(d string) *Builder {
	b.c.Description = d
	return b
}

// DiscountType sets the discount strategy.
func (b *Builder) DiscountType(t DiscountType) *Builder {
	b.c.DiscountType = t
	return b
}

// DiscountValue sets the discount value. The percentage upper bound is
// type-dependent, so it is enforced in Validate regardless of whether the
// discount type was set before or after this call.
func (b *Builder) DiscountValue(v decimal.Decimal) *Builder {
	b.c.DiscountValue = v
	return b
}

// MinOrderValue sets the minimum subtotal required to redeem the coupon.
func (b *Builder) MinOrderValue(v decimal.Decimal) *Builder {
	b.c.MinOrderValue = v
	return b
}

// MaxDiscount caps the absolute discount for percentage coupons.
func (b *Builder) MaxDiscount(v decimal.Decimal) *Builder {
	b.c.MaxDiscount = v
	return b
}

// UsageLimit sets the global redemption cap. Zero means unlimited.
func (b *Builder) UsageLimit(n int) *Builder {
	b.c.UsageLimit = n
	return b
}

// UsageLimitPerUser sets the per-user redemption cap. Zero means unlimited.
func (b *Builder) UsageLimitPerUser(n int) *Builder {
	b.c.UsageLimitPerUser = n
	return b
}

// DateRange sets the validity window. The window is half-open: the coupon is
// valid at start and invalid at end.
func (b *Builder) DateRange(start, end time.Time) *Builder {
	b.c.StartDate = start
	b.c.EndDate = end
	b.datesSet = true
	return b
}

// Type sets the coupon type.
func (b *Builder) Type(t Type) *Builder {
	b.c.Type = t
	return b
}

// Visibility sets where the coupon is surfaced.
func (b *Builder) Visibility(v Visibility) *Builder {
	b.c.Visibility = v
	return b
}

// AssignedUsers sets the users a private coupon is restricted to.
func (b *Builder) AssignedUsers(users ...string) *Builder {
	b.c.AssignedUsers = users
	return b
}

// Active sets the active flag.
func (b *Builder) Active(active bool) *Builder {
	b.c.Active = active
	return b
}

// ForCategories restricts the coupon to the given category ids.
func (b *Builder) ForCategories(ids ...string) *Builder {
	b.c.Categories = ids
	return b
}

// ForProducts restricts the coupon to the given product ids.
func (b *Builder) ForProducts(ids ...string) *Builder {
	b.c.Products = ids
	return b
}

// AsPublicFeatured marks the coupon public, featured and active.
func (b *Builder) AsPublicFeatured() *Builder {
	return b.Type(TypePublic).Visibility(VisibilityFeatured).Active(true)
}

// AsPrivateForUsers marks the coupon private and assigns it to the given
// users. An empty user list is rejected by Validate.
func (b *Builder) AsPrivateForUsers(users ...string) *Builder {
	return b.Type(TypePrivate).Visibility(VisibilityHidden).AssignedUsers(users...)
}

// AsPercentageDiscount sets a percentage discount of the given value.
func (b *Builder) AsPercentageDiscount(v decimal.Decimal) *Builder {
	return b.DiscountType(DiscountPercentage).DiscountValue(v)
}

// AsFixedDiscount sets a fixed discount of the given value.
func (b *Builder) AsFixedDiscount(v decimal.Decimal) *Builder {
	return b.DiscountType(DiscountFixed).DiscountValue(v)
}

// AsNewCustomerCoupon configures a single-use-per-user coupon surfaced on the
// landing page.
func (b *Builder) AsNewCustomerCoupon() *Builder {
	return b.UsageLimitPerUser(1).Visibility(VisibilityLandingPage)
}

// AsFlashSale configures a short-lived featured coupon valid in the given
// window.
func (b *Builder) AsFlashSale(start, end time.Time) *Builder {
	return b.DateRange(start, end).Visibility(VisibilityFeatured).Active(true)
}

// Validate checks every build invariant and reports all violations at once.
// It returns nil when the accumulated state describes a valid coupon.
func (b *Builder) Validate() error {
	var violations []string

	if b.c.Code == "" {
		violations = append(violations, "code is required")
	}

	switch {
	case b.c.DiscountType == "":
		violations = append(violations, "discount type is required")
	case !b.c.DiscountType.IsValid():
		violations = append(violations, fmt.Sprintf("discount type must be %q or %q", DiscountPercentage, DiscountFixed))
	}

	if !b.c.DiscountValue.IsPositive() {
		violations = append(violations, "discount value must be greater than zero")
	}
	if b.c.DiscountType == DiscountPercentage && b.c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		violations = append(violations, "percentage discount cannot exceed 100")
	}

	if b.c.MinOrderValue.IsNegative() {
		violations = append(violations, "min order value cannot be negative")
	}
	if b.c.MaxDiscount.IsNegative() {
		violations = append(violations, "max discount cannot be negative")
	}
	if b.c.UsageLimit < 0 {
		violations = append(violations, "usage limit cannot be negative")
	}
	if b.c.UsageLimitPerUser < 0 {
		violations = append(violations, "per-user usage limit cannot be negative")
	}

	switch {
	case !b.datesSet:
		violations = append(violations, "date range is required")
	case !b.c.EndDate.After(b.c.StartDate):
		violations = append(violations, "end date must be after start date")
	}

	if b.c.Type != "" && !b.c.Type.IsValid() {
		violations = append(violations, fmt.Sprintf("type must be %q or %q", TypePublic, TypePrivate))
	}
	if b.c.Type == TypePrivate && len(b.c.AssignedUsers) == 0 {
		violations = append(violations, "private coupon requires at least one assigned user")
	}
	if b.c.Visibility != "" && !b.c.Visibility.IsValid() {
		violations = append(violations, fmt.Sprintf("visibility must be %q, %q or %q", VisibilityHidden, VisibilityFeatured, VisibilityLandingPage))
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// Build validates the accumulated state and returns the finished coupon.
// It never returns a coupon that violates an invariant.
func (b *Builder) Build() (*Coupon, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	c := b.c
	c.Code = NormalizeCode(c.Code)
	if c.Type == "" {
		c.Type = TypePublic
	}
	if c.Visibility == "" {
		c.Visibility = VisibilityHidden
	}

	// Copy slices so later builder mutation cannot leak into the built value.
	c.Categories = append([]string(nil), b.c.Categories...)
	c.Products = append([]string(nil), b.c.Products...)
	c.AssignedUsers = append([]string(nil), b.c.AssignedUsers...)

	return &c, nil
}

// Reset discards all accumulated state so the builder can be reused.
func (b *Builder) Reset() *Builder {
	*b = Builder{}
	return b
}
