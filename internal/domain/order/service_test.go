package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/commerce/internal/domain/auth"
)

// mockOrderRepo is an in-memory Repository honoring the optimistic version
// contract of Update.
type mockOrderRepo struct {
	orders map[string]*Order

	// conflicts forces ErrVersionConflict from Update n times per order id.
	conflicts map[string]int
	// updateErrs forces an arbitrary Update error per order id.
	updateErrs map[string]error
	// staleExtra is appended to StalePending results as-is.
	staleExtra []Order

	staleErr error
}

func newMockRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{
		orders:     make(map[string]*Order),
		conflicts:  make(map[string]int),
		updateErrs: make(map[string]error),
	}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.orders {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	if err := m.updateErrs[o.ID]; err != nil {
		return err
	}
	if m.conflicts[o.ID] > 0 {
		m.conflicts[o.ID]--
		return ErrVersionConflict
	}

	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != o.Version {
		return ErrVersionConflict
	}

	cp := *o
	cp.Version++
	m.orders[o.ID] = &cp
	o.Version++
	return nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string, f ListFilter) (*Page, error) {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return &Page{Orders: out, Total: int64(len(out)), Page: f.Page, Limit: f.Limit}, nil
}

func (m *mockOrderRepo) List(_ context.Context, f ListFilter) (*Page, error) {
	var out []Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return &Page{Orders: out, Total: int64(len(out)), Page: f.Page, Limit: f.Limit}, nil
}

func (m *mockOrderRepo) StalePending(_ context.Context, olderThan time.Time) ([]Order, error) {
	if m.staleErr != nil {
		return nil, m.staleErr
	}
	var out []Order
	for _, o := range m.orders {
		if o.Status == StatusPending && o.CreatedAt.Before(olderThan) {
			out = append(out, *o)
		}
	}
	out = append(out, m.staleExtra...)
	return out, nil
}

func (m *mockOrderRepo) Stats(_ context.Context, userID string) (*Stats, error) {
	s := &Stats{ByStatus: make(map[Status]int64), TotalSpent: decimal.Zero}
	for _, o := range m.orders {
		if userID != "" && o.UserID != userID {
			continue
		}
		s.TotalOrders++
		s.ByStatus[o.Status]++
	}
	return s, nil
}

func (m *mockOrderRepo) Revenue(_ context.Context, from, to time.Time) (*Revenue, error) {
	return &Revenue{From: from, To: to, Total: decimal.Zero}, nil
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository) *Service {
	s := NewService(repo)
	s.now = func() time.Time { return testNow }
	return s
}

func testOrder(mutate func(*Order)) *Order {
	o := &Order{
		ID:            "ord-1",
		Number:        "ORD-1001",
		UserID:        "user-1",
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Items: []Item{
			{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		},
		CreatedAt: testNow.Add(-48 * time.Hour),
		UpdatedAt: testNow.Add(-48 * time.Hour),
	}
	if mutate != nil {
		mutate(o)
	}
	return o
}

var (
	owner = auth.Actor{UserID: "user-1"}
	other = auth.Actor{UserID: "user-2"}
	admin = auth.Actor{UserID: "admin-1", Admin: true}
)

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("valid transition appends audit", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		svc := newTestService(repo)

		o, err := svc.UpdateStatus(ctx, "ord-1", StatusConfirmed, "payment received", "admin-1")
		require.NoError(t, err)

		assert.Equal(t, StatusConfirmed, o.Status)
		require.Len(t, o.Audit, 1)
		assert.Equal(t, StatusPending, o.Audit[0].From)
		assert.Equal(t, StatusConfirmed, o.Audit[0].To)
		assert.Equal(t, "payment received", o.Audit[0].Note)
		assert.Equal(t, "admin-1", o.Audit[0].ActorID)
		assert.Equal(t, testNow, o.Audit[0].At)
		assert.Equal(t, testNow, o.UpdatedAt)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		_, err := svc.UpdateStatus(ctx, "ord-1", Status("refunded"), "", "admin-1")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("cancelled requires note", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		_, err := svc.UpdateStatus(ctx, "ord-1", StatusCancelled, "", "admin-1")
		assert.ErrorIs(t, err, ErrReasonRequired)
	})

	t.Run("invalid transition carries current state", func(t *testing.T) {
		repo := newMockRepo(testOrder(func(o *Order) { o.Status = StatusDelivered }))
		svc := newTestService(repo)

		_, err := svc.UpdateStatus(ctx, "ord-1", StatusConfirmed, "", "admin-1")

		var terr *InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, StatusDelivered, terr.From)
		assert.Equal(t, StatusConfirmed, terr.To)
	})

	t.Run("cancellation note stored as reason", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		svc := newTestService(repo)

		o, err := svc.UpdateStatus(ctx, "ord-1", StatusCancelled, "out of stock", "admin-1")
		require.NoError(t, err)
		assert.Equal(t, "out of stock", o.CancellationReason)
	})

	t.Run("unknown order", func(t *testing.T) {
		svc := newTestService(newMockRepo())

		_, err := svc.UpdateStatus(ctx, "missing", StatusConfirmed, "", "admin-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("retries once on version conflict", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		repo.conflicts["ord-1"] = 1
		svc := newTestService(repo)

		o, err := svc.UpdateStatus(ctx, "ord-1", StatusConfirmed, "", "admin-1")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, o.Status)
	})

	t.Run("persistent conflict surfaces", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		repo.conflicts["ord-1"] = 2
		svc := newTestService(repo)

		_, err := svc.UpdateStatus(ctx, "ord-1", StatusConfirmed, "", "admin-1")
		assert.ErrorIs(t, err, ErrVersionConflict)
	})
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels pending order", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		svc := newTestService(repo)

		o, err := svc.Cancel(ctx, "ord-1", "changed my mind", owner)
		require.NoError(t, err)

		assert.Equal(t, StatusCancelled, o.Status)
		assert.Equal(t, "changed my mind", o.CancellationReason)
		require.Len(t, o.Audit, 1)
		assert.Equal(t, "user-1", o.Audit[0].ActorID)
	})

	t.Run("reason required", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		_, err := svc.Cancel(ctx, "ord-1", "", owner)
		assert.ErrorIs(t, err, ErrReasonRequired)
	})

	t.Run("other user forbidden", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		_, err := svc.Cancel(ctx, "ord-1", "nope", other)

		var ferr *ForbiddenError
		assert.ErrorAs(t, err, &ferr)
	})

	t.Run("admin cancels any order", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		svc := newTestService(repo)

		o, err := svc.Cancel(ctx, "ord-1", "fraud review", admin)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, o.Status)
	})

	t.Run("already cancelled converges without new audit", func(t *testing.T) {
		repo := newMockRepo(testOrder(func(o *Order) {
			o.Status = StatusCancelled
			o.CancellationReason = "auto-cancelled: unpaid for over 24h0m0s"
			o.Audit = []AuditEntry{{From: StatusPending, To: StatusCancelled, ActorID: "system", At: testNow}}
		}))
		svc := newTestService(repo)

		o, err := svc.Cancel(ctx, "ord-1", "changed my mind", owner)
		require.NoError(t, err)

		assert.Equal(t, StatusCancelled, o.Status)
		assert.Len(t, o.Audit, 1)
		assert.Equal(t, "auto-cancelled: unpaid for over 24h0m0s", o.CancellationReason)
	})

	t.Run("shipped order cannot be cancelled", func(t *testing.T) {
		repo := newMockRepo(testOrder(func(o *Order) { o.Status = StatusShipped }))
		svc := newTestService(repo)

		_, err := svc.Cancel(ctx, "ord-1", "too late", owner)

		var terr *InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, StatusShipped, terr.From)
	})
}

func TestService_Return(t *testing.T) {
	ctx := context.Background()

	t.Run("owner returns delivered order", func(t *testing.T) {
		repo := newMockRepo(testOrder(func(o *Order) { o.Status = StatusDelivered }))
		svc := newTestService(repo)

		o, err := svc.Return(ctx, "ord-1", "wrong size", owner)
		require.NoError(t, err)

		assert.Equal(t, StatusReturned, o.Status)
		assert.Equal(t, "wrong size", o.ReturnReason)
	})

	t.Run("only the owner may return", func(t *testing.T) {
		repo := newMockRepo(testOrder(func(o *Order) { o.Status = StatusDelivered }))
		svc := newTestService(repo)

		_, err := svc.Return(ctx, "ord-1", "wrong size", admin)

		var ferr *ForbiddenError
		assert.ErrorAs(t, err, &ferr)
	})

	t.Run("undelivered order cannot be returned", func(t *testing.T) {
		repo := newMockRepo(testOrder(func(o *Order) { o.Status = StatusShipped }))
		svc := newTestService(repo)

		_, err := svc.Return(ctx, "ord-1", "wrong size", owner)

		var terr *InvalidTransitionError
		assert.ErrorAs(t, err, &terr)
	})

	t.Run("reason required", func(t *testing.T) {
		repo := newMockRepo(testOrder(func(o *Order) { o.Status = StatusDelivered }))
		svc := newTestService(repo)

		_, err := svc.Return(ctx, "ord-1", "", owner)
		assert.ErrorIs(t, err, ErrReasonRequired)
	})
}

func TestService_UpdateTracking(t *testing.T) {
	repo := newMockRepo(testOrder(func(o *Order) { o.Status = StatusConfirmed }))
	svc := newTestService(repo)

	o, err := svc.UpdateTracking(context.Background(), "ord-1", "TRK-123", "dhl")
	require.NoError(t, err)

	assert.Equal(t, "TRK-123", o.TrackingNumber)
	assert.Equal(t, "dhl", o.ShippingProvider)
	assert.Equal(t, StatusConfirmed, o.Status)
}

func TestService_UpdatePaymentStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown payment status rejected", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		_, err := svc.UpdatePaymentStatus(ctx, "ord-1", PaymentStatus("settled"), PaymentDetails{})
		assert.ErrorIs(t, err, ErrInvalidPayment)
	})

	t.Run("paid requires confirmer", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		_, err := svc.UpdatePaymentStatus(ctx, "ord-1", PaymentPaid, PaymentDetails{})
		assert.ErrorIs(t, err, ErrConfirmerRequired)
	})

	t.Run("paid records confirmer once", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		svc := newTestService(repo)

		o, err := svc.UpdatePaymentStatus(ctx, "ord-1", PaymentPaid, PaymentDetails{ConfirmedBy: "admin-1"})
		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, o.PaymentStatus)
		assert.Equal(t, "admin-1", o.PaymentConfirmedBy)

		// A later update never overwrites the original confirmer.
		o, err = svc.UpdatePaymentStatus(ctx, "ord-1", PaymentPaid, PaymentDetails{ConfirmedBy: "admin-2"})
		require.NoError(t, err)
		assert.Equal(t, "admin-1", o.PaymentConfirmedBy)
	})

	t.Run("failed needs no confirmer", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		svc := newTestService(repo)

		o, err := svc.UpdatePaymentStatus(ctx, "ord-1", PaymentFailed, PaymentDetails{})
		require.NoError(t, err)
		assert.Equal(t, PaymentFailed, o.PaymentStatus)
		assert.Empty(t, o.PaymentConfirmedBy)
	})
}

func TestService_AutoCancelPending(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels stale pending orders only", func(t *testing.T) {
		stale := testOrder(nil)
		fresh := testOrder(func(o *Order) {
			o.ID = "ord-2"
			o.CreatedAt = testNow.Add(-time.Hour)
		})
		confirmed := testOrder(func(o *Order) {
			o.ID = "ord-3"
			o.Status = StatusConfirmed
		})
		repo := newMockRepo(stale, fresh, confirmed)
		svc := newTestService(repo)

		res, err := svc.AutoCancelPending(ctx, 24*time.Hour)
		require.NoError(t, err)

		assert.Equal(t, []string{"ord-1"}, res.Cancelled)
		assert.Zero(t, res.Skipped)
		assert.Empty(t, res.Failures)

		got := repo.orders["ord-1"]
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Contains(t, got.CancellationReason, "auto-cancelled")
		require.Len(t, got.Audit, 1)
		assert.Equal(t, "system", got.Audit[0].ActorID)

		assert.Equal(t, StatusPending, repo.orders["ord-2"].Status)
		assert.Equal(t, StatusConfirmed, repo.orders["ord-3"].Status)
	})

	t.Run("second sweep is a no-op", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		svc := newTestService(repo)

		res, err := svc.AutoCancelPending(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Len(t, res.Cancelled, 1)

		res, err = svc.AutoCancelPending(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Empty(t, res.Cancelled)
		assert.Zero(t, res.Skipped)
	})

	t.Run("order no longer pending is skipped", func(t *testing.T) {
		repo := newMockRepo()
		repo.staleExtra = []Order{*testOrder(func(o *Order) { o.Status = StatusConfirmed })}
		svc := newTestService(repo)

		res, err := svc.AutoCancelPending(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Empty(t, res.Cancelled)
		assert.Equal(t, 1, res.Skipped)
	})

	t.Run("version conflict counts as skipped", func(t *testing.T) {
		repo := newMockRepo(testOrder(nil))
		repo.conflicts["ord-1"] = 1
		svc := newTestService(repo)

		res, err := svc.AutoCancelPending(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Empty(t, res.Cancelled)
		assert.Equal(t, 1, res.Skipped)
		assert.Empty(t, res.Failures)
	})

	t.Run("one failure does not abort the batch", func(t *testing.T) {
		bad := testOrder(func(o *Order) { o.ID = "ord-bad" })
		good := testOrder(nil)
		repo := newMockRepo(bad, good)
		repo.updateErrs["ord-bad"] = errors.New("connection reset")
		svc := newTestService(repo)

		res, err := svc.AutoCancelPending(ctx, 24*time.Hour)
		require.NoError(t, err)

		assert.Equal(t, []string{"ord-1"}, res.Cancelled)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, "ord-bad", res.Failures[0].OrderID)
	})

	t.Run("query failure aborts", func(t *testing.T) {
		repo := newMockRepo()
		repo.staleErr = errors.New("db down")
		svc := newTestService(repo)

		_, err := svc.AutoCancelPending(ctx, 24*time.Hour)
		assert.Error(t, err)
	})
}

func TestService_Reads(t *testing.T) {
	ctx := context.Background()

	t.Run("owner and admin may read, others may not", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		_, err := svc.GetByID(ctx, "ord-1", owner)
		assert.NoError(t, err)

		_, err = svc.GetByID(ctx, "ord-1", admin)
		assert.NoError(t, err)

		_, err = svc.GetByID(ctx, "ord-1", other)
		var ferr *ForbiddenError
		assert.ErrorAs(t, err, &ferr)
	})

	t.Run("lookup by number follows the same rule", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		o, err := svc.GetByNumber(ctx, "ORD-1001", owner)
		require.NoError(t, err)
		assert.Equal(t, "ord-1", o.ID)

		_, err = svc.GetByNumber(ctx, "ORD-1001", other)
		var ferr *ForbiddenError
		assert.ErrorAs(t, err, &ferr)
	})

	t.Run("list all is admin only", func(t *testing.T) {
		svc := newTestService(newMockRepo(testOrder(nil)))

		_, err := svc.ListAll(ctx, owner, ListFilter{})
		var ferr *ForbiddenError
		assert.ErrorAs(t, err, &ferr)

		page, err := svc.ListAll(ctx, admin, ListFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, page.Total)
	})

	t.Run("stats scoped to self for non-admins", func(t *testing.T) {
		repo := newMockRepo(
			testOrder(nil),
			testOrder(func(o *Order) { o.ID = "ord-2"; o.UserID = "user-2" }),
		)
		svc := newTestService(repo)

		s, err := svc.Stats(ctx, owner, "user-2")
		require.NoError(t, err)
		assert.EqualValues(t, 1, s.TotalOrders)

		s, err = svc.Stats(ctx, admin, "")
		require.NoError(t, err)
		assert.EqualValues(t, 2, s.TotalOrders)
	})

	t.Run("revenue report is admin only and validates the window", func(t *testing.T) {
		svc := newTestService(newMockRepo())
		from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

		_, err := svc.RevenueReport(ctx, owner, from, to)
		var ferr *ForbiddenError
		assert.ErrorAs(t, err, &ferr)

		_, err = svc.RevenueReport(ctx, admin, to, from)
		assert.ErrorIs(t, err, ErrInvalidDateRange)

		r, err := svc.RevenueReport(ctx, admin, from, to)
		require.NoError(t, err)
		assert.Equal(t, from, r.From)

		// Single-day window is allowed.
		_, err = svc.RevenueReport(ctx, admin, from, from)
		assert.NoError(t, err)
	})
}

func TestNormalizeFilter(t *testing.T) {
	tests := []struct {
		name string
		in   ListFilter
		want ListFilter
	}{
		{
			name: "zero value gets defaults",
			in:   ListFilter{},
			want: ListFilter{Page: 1, Limit: 20, SortBy: "created_at", SortOrder: "desc"},
		},
		{
			name: "limit above cap resets",
			in:   ListFilter{Page: 2, Limit: 500},
			want: ListFilter{Page: 2, Limit: 20, SortBy: "created_at", SortOrder: "desc"},
		},
		{
			name: "unknown sort column resets",
			in:   ListFilter{SortBy: "items; DROP TABLE orders", SortOrder: "asc"},
			want: ListFilter{Page: 1, Limit: 20, SortBy: "created_at", SortOrder: "asc"},
		},
		{
			name: "valid values pass through",
			in:   ListFilter{Status: StatusShipped, Page: 3, Limit: 50, SortBy: "updated_at", SortOrder: "asc"},
			want: ListFilter{Status: StatusShipped, Page: 3, Limit: 50, SortBy: "updated_at", SortOrder: "asc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeFilter(tt.in))
		})
	}
}
