package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluator decides whether a coupon applies to an order and computes the
// discount, reserving one usage slot on success.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// Evaluate looks up the coupon, runs the eligibility rules in their defined
// order, reserves a usage slot, and returns the computed discount. The first
// failed rule is reported via IneligibleError; the usage caps are checked by
// the repository atomically with the slot reservation, so a passing check
// can never be invalidated by a concurrent redemption.
func (e *Evaluator) Evaluate(ctx context.Context, code string, octx OrderContext) (*Discount, error) {
	c, err := e.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := Eligible(c, octx, e.now()); err != nil {
		return nil, err
	}

	if err := e.repo.Reserve(ctx, c.Code, octx.UserID); err != nil {
		switch {
		case errors.Is(err, ErrUsageLimitReached):
			return nil, &IneligibleError{Code: c.Code, Reason: ReasonUsageLimit}
		case errors.Is(err, ErrUserUsageLimitReached):
			return nil, &IneligibleError{Code: c.Code, Reason: ReasonUserUsageLimit}
		}
		return nil, errors.Wrap(err, "reserve usage slot")
	}

	return &Discount{
		Code:        c.Code,
		Amount:      ComputeDiscount(c, octx.Subtotal),
		Description: c.Description,
	}, nil
}

// Eligible checks the non-usage eligibility rules in order: active flag,
// validity window [start, end), private assignment, minimum order value, and
// catalog applicability. It returns an IneligibleError naming the first rule
// that failed, or nil when all pass.
func Eligible(c *Coupon, octx OrderContext, now time.Time) error {
	if !c.Active {
		return &IneligibleError{Code: c.Code, Reason: ReasonInactive}
	}
	if now.Before(c.StartDate) || !now.Before(c.EndDate) {
		return &IneligibleError{Code: c.Code, Reason: ReasonOutsideWindow}
	}

	if c.Type == TypePrivate && !contains(c.AssignedUsers, octx.UserID) {
		return &IneligibleError{Code: c.Code, Reason: ReasonNotAssigned}
	}

	if c.MinOrderValue.IsPositive() && octx.Subtotal.LessThan(c.MinOrderValue) {
		return &IneligibleError{Code: c.Code, Reason: ReasonMinOrderValue}
	}

	if len(c.Categories) > 0 || len(c.Products) > 0 {
		if !intersects(c.Categories, octx.Categories) && !intersects(c.Products, octx.Products) {
			return &IneligibleError{Code: c.Code, Reason: ReasonNotApplicable}
		}
	}

	return nil
}

// ComputeDiscount returns the discount amount for an eligible coupon against
// the given subtotal: percentage coupons take their share of the subtotal
// capped at MaxDiscount when set, fixed coupons never exceed the subtotal.
func ComputeDiscount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
			amount = c.MaxDiscount
		}
	case DiscountFixed:
		amount = decimal.Min(c.DiscountValue, subtotal)
	}

	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(set, other []string) bool {
	if len(set) == 0 || len(other) == 0 {
		return false
	}
	m := make(map[string]struct{}, len(set))
	for _, s := range set {
		m[s] = struct{}{}
	}
	for _, o := range other {
		if _, ok := m[o]; ok {
			return true
		}
	}
	return false
}
