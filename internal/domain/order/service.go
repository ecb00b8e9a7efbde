package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shopfront/commerce/internal/domain/auth"
)

// systemActorID marks transitions performed by the service itself rather
// than a user or admin.
const systemActorID = "system"

// PaymentDetails carries the payment reconciliation facts for a payment
// status update.
type PaymentDetails struct {
	ConfirmedBy string
	Reference   string
}

// SweepFailure records one order the auto-cancel sweep could not update.
type SweepFailure struct {
	OrderID string
	Err     error
}

// SweepResult reports the outcome of one auto-cancel sweep. Skipped counts
// orders that were no longer pending by the time the sweep reached them;
// racing with a user-initiated cancellation is convergence, not an error.
type SweepResult struct {
	Cancelled []string
	Skipped   int
	Failures  []SweepFailure
}

// Service owns the order status and payment-status state machines.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates an order lifecycle Service backed by the given
// repository.
func NewService(orders Repository) *Service {
	return &Service{orders: orders, now: time.Now}
}

// UpdateStatus transitions an order to newStatus, recording note and actor
// in the audit trail. Transitions not reachable per the state machine fail
// with InvalidTransitionError carrying the current state. Transitions into
// cancelled or returned require a non-empty note, which is stored as the
// respective reason.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, newStatus Status, note, actorID string) (*Order, error) {
	if !newStatus.IsValid() {
		return nil, ErrInvalidStatus
	}
	if (newStatus == StatusCancelled || newStatus == StatusReturned) && note == "" {
		return nil, ErrReasonRequired
	}

	return s.mutate(ctx, orderID, func(o *Order) error {
		if !o.Status.CanTransitionTo(newStatus) {
			return &InvalidTransitionError{From: o.Status, To: newStatus}
		}
		s.transition(o, newStatus, note, actorID)
		switch newStatus {
		case StatusCancelled:
			o.CancellationReason = note
		case StatusReturned:
			o.ReturnReason = note
		}
		return nil
	})
}

// Cancel cancels an order on behalf of the given actor. Non-admin actors may
// cancel only their own orders; cancellation is permitted only from pending
// or confirmed. An order that is already cancelled is treated as success so
// a user-initiated cancel converges with the auto-cancel sweep.
func (s *Service) Cancel(ctx context.Context, orderID, reason string, actor auth.Actor) (*Order, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}

	return s.mutate(ctx, orderID, func(o *Order) error {
		if !actor.Admin && o.UserID != actor.UserID {
			return &ForbiddenError{UserID: actor.UserID, OrderID: orderID}
		}
		if o.Status == StatusCancelled {
			return nil // already converged
		}
		if !o.Status.CanTransitionTo(StatusCancelled) {
			return &InvalidTransitionError{From: o.Status, To: StatusCancelled}
		}
		s.transition(o, StatusCancelled, reason, actor.UserID)
		o.CancellationReason = reason
		return nil
	})
}

// Return moves a delivered order to returned. Only the owning user may
// return an order, and a non-empty reason is required.
func (s *Service) Return(ctx context.Context, orderID, reason string, actor auth.Actor) (*Order, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}

	return s.mutate(ctx, orderID, func(o *Order) error {
		if o.UserID != actor.UserID {
			return &ForbiddenError{UserID: actor.UserID, OrderID: orderID}
		}
		if !o.Status.CanTransitionTo(StatusReturned) {
			return &InvalidTransitionError{From: o.Status, To: StatusReturned}
		}
		s.transition(o, StatusReturned, reason, actor.UserID)
		o.ReturnReason = reason
		return nil
	})
}

// UpdateTracking attaches a tracking number and shipping provider. The order
// only needs to exist; no status requirement applies.
func (s *Service) UpdateTracking(ctx context.Context, orderID, trackingNumber, provider string) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) error {
		o.TrackingNumber = trackingNumber
		o.ShippingProvider = provider
		return nil
	})
}

// UpdatePaymentStatus transitions the payment axis. Marking an order paid
// requires details.ConfirmedBy; the confirmer is recorded once and never
// overwritten.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, status PaymentStatus, details PaymentDetails) (*Order, error) {
	if !status.IsValid() {
		return nil, ErrInvalidPayment
	}
	if status == PaymentPaid && details.ConfirmedBy == "" {
		return nil, ErrConfirmerRequired
	}

	return s.mutate(ctx, orderID, func(o *Order) error {
		o.PaymentStatus = status
		if status == PaymentPaid && o.PaymentConfirmedBy == "" {
			o.PaymentConfirmedBy = details.ConfirmedBy
		}
		return nil
	})
}

// AutoCancelPending cancels every order still pending after olderThan. The
// sweep is idempotent: a second run over the same data cancels nothing new.
// Per-order failures are collected into the result, never aborting the rest
// of the batch.
func (s *Service) AutoCancelPending(ctx context.Context, olderThan time.Duration) (*SweepResult, error) {
	cutoff := s.now().Add(-olderThan)

	stale, err := s.orders.StalePending(ctx, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "select stale pending orders")
	}

	lg := zctx.From(ctx)
	reason := fmt.Sprintf("auto-cancelled: unpaid for over %s", olderThan)

	result := &SweepResult{}
	for i := range stale {
		o := &stale[i]
		if o.Status != StatusPending {
			result.Skipped++
			continue
		}

		s.transition(o, StatusCancelled, reason, systemActorID)
		o.CancellationReason = reason

		if err := s.orders.Update(ctx, o); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				// Someone else (likely a user cancel) got there first.
				result.Skipped++
				continue
			}
			lg.Error("sweep failed to cancel order",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
			result.Failures = append(result.Failures, SweepFailure{OrderID: o.ID, Err: err})
			continue
		}
		result.Cancelled = append(result.Cancelled, o.ID)
	}

	if len(result.Cancelled) > 0 || len(result.Failures) > 0 {
		lg.Info("auto-cancel sweep finished",
			zap.Int("cancelled", len(result.Cancelled)),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", len(result.Failures)),
		)
	}
	return result, nil
}

// GetByID returns an order. Non-admin actors may only read their own orders.
func (s *Service) GetByID(ctx context.Context, orderID string, actor auth.Actor) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return nil, &ForbiddenError{UserID: actor.UserID, OrderID: orderID}
	}
	return o, nil
}

// GetByNumber returns an order by its human-facing number, under the same
// authorization rule as GetByID.
func (s *Service) GetByNumber(ctx context.Context, number string, actor auth.Actor) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return nil, &ForbiddenError{UserID: actor.UserID, OrderID: o.ID}
	}
	return o, nil
}

// ListForUser returns a page of the actor's own orders.
func (s *Service) ListForUser(ctx context.Context, actor auth.Actor, f ListFilter) (*Page, error) {
	return s.orders.ListByUser(ctx, actor.UserID, normalizeFilter(f))
}

// ListAll returns a page across all users. Admin only.
func (s *Service) ListAll(ctx context.Context, actor auth.Actor, f ListFilter) (*Page, error) {
	if !actor.Admin {
		return nil, &ForbiddenError{UserID: actor.UserID}
	}
	return s.orders.List(ctx, normalizeFilter(f))
}

// Stats returns aggregate order statistics. The userID parameter is honored
// only for admins; other actors always get their own stats.
func (s *Service) Stats(ctx context.Context, actor auth.Actor, userID string) (*Stats, error) {
	if !actor.Admin {
		userID = actor.UserID
	}
	return s.orders.Stats(ctx, userID)
}

// RevenueReport aggregates paid-order revenue over the inclusive window
// [from, to]. Admin only; a window with to before from is rejected.
func (s *Service) RevenueReport(ctx context.Context, actor auth.Actor, from, to time.Time) (*Revenue, error) {
	if !actor.Admin {
		return nil, &ForbiddenError{UserID: actor.UserID}
	}
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}
	return s.orders.Revenue(ctx, from, to)
}

// transition applies a status change and appends the audit entry.
func (s *Service) transition(o *Order, to Status, note, actorID string) {
	o.Audit = append(o.Audit, AuditEntry{
		From:    o.Status,
		To:      to,
		Note:    note,
		ActorID: actorID,
		At:      s.now(),
	})
	o.Status = to
	o.UpdatedAt = s.now()
}

// mutate loads the order, applies fn, and saves it with the optimistic
// version check. On a version conflict it reloads and retries once so two
// racing requests serialize instead of both failing.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(*Order) error) (*Order, error) {
	const attempts = 2

	var lastErr error
	for range attempts {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		if err := fn(o); err != nil {
			return nil, err
		}

		err = s.orders.Update(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, errors.Wrap(err, "update order")
		}
		lastErr = err
	}
	return nil, lastErr
}

func normalizeFilter(f ListFilter) ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	switch f.SortBy {
	case "created_at", "updated_at":
	default:
		f.SortBy = "created_at"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	return f
}
