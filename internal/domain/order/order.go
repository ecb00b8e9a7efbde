package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the business fulfillment stage of an order, independent of
// payment settlement.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusReturned  Status = "returned"
)

// IsValid reports whether the status is a known member.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether the status may move to the target status.
// Cancelled and returned are terminal; delivered admits only the return path.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusConfirmed || target == StatusCancelled
	case StatusConfirmed:
		return target == StatusShipped || target == StatusCancelled
	case StatusShipped:
		return target == StatusDelivered
	case StatusDelivered:
		return target == StatusReturned
	case StatusCancelled, StatusReturned:
		return false
	}
	return false
}

// PaymentStatus is the state of funds settlement, an independent axis from
// the fulfillment status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// IsValid reports whether the payment status is a known member.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Item is a single order line.
type Item struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageRef  string          `json:"image_ref"`
}

// AuditEntry records one status transition with its actor and note.
type AuditEntry struct {
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Note    string    `json:"note,omitempty"`
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
}

// Order is a customer order. Version supports optimistic concurrency: the
// repository only applies an update when the stored version matches, so two
// concurrent transitions cannot both validate against the same state.
type Order struct {
	ID     string
	Number string
	UserID string
	Items  []Item

	Status        Status
	PaymentStatus PaymentStatus
	// PaymentConfirmedBy is the actor who confirmed payment. Recorded once
	// when the payment status moves to paid, never overwritten.
	PaymentConfirmedBy string

	TrackingNumber   string
	ShippingProvider string

	CancellationReason string
	ReturnReason       string

	Audit   []AuditEntry
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal returns the sum of unit price times quantity across all items.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Sentinel errors for order operations.
var (
	ErrNotFound          = errors.New("order not found")
	ErrReasonRequired    = errors.New("reason is required")
	ErrInvalidStatus     = errors.New("unknown order status")
	ErrInvalidPayment    = errors.New("unknown payment status")
	ErrConfirmerRequired = errors.New("confirmed_by is required when marking paid")
	ErrInvalidDateRange  = errors.New("end date must not be before start date")
	ErrVersionConflict   = errors.New("order was modified concurrently")
)

// InvalidTransitionError reports a rejected state machine transition,
// carrying the current state so callers can see what blocked them.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// ForbiddenError reports an authorization failure on an order operation.
type ForbiddenError struct {
	UserID  string
	OrderID string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %s is not permitted to access order %s", e.UserID, e.OrderID)
}

// ListFilter narrows and paginates order listings. Zero-valued fields are
// ignored.
type ListFilter struct {
	Status        Status
	PaymentStatus PaymentStatus
	Page          int
	Limit         int
	SortBy        string // created_at or updated_at
	SortOrder     string // asc or desc
}

// Page is one page of an order listing.
type Page struct {
	Orders []Order
	Total  int64
	Page   int
	Limit  int
}

// Stats aggregates order counts and spend, optionally scoped to one user.
type Stats struct {
	TotalOrders int64
	ByStatus    map[Status]int64
	TotalSpent  decimal.Decimal
}

// Revenue aggregates paid-order revenue over an inclusive date window.
type Revenue struct {
	From   time.Time
	To     time.Time
	Orders int64
	Total  decimal.Decimal
}

// Repository defines persistence operations for orders.
//
// Update must apply the change only when the stored version equals
// o.Version, incrementing it on success, and return ErrVersionConflict
// otherwise.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListByUser(ctx context.Context, userID string, f ListFilter) (*Page, error)
	List(ctx context.Context, f ListFilter) (*Page, error)
	StalePending(ctx context.Context, olderThan time.Time) ([]Order, error)
	Stats(ctx context.Context, userID string) (*Stats, error)
	Revenue(ctx context.Context, from, to time.Time) (*Revenue, error)
}
