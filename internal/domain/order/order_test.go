package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPending, StatusDelivered, false},
		{StatusPending, StatusReturned, false},

		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusDelivered, false},
		{StatusConfirmed, StatusPending, false},

		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusShipped, StatusReturned, false},

		{StatusDelivered, StatusReturned, true},
		{StatusDelivered, StatusConfirmed, false},
		{StatusDelivered, StatusCancelled, false},

		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusReturned, StatusPending, false},
		{StatusReturned, StatusDelivered, false},

		{Status("bogus"), StatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled, StatusReturned} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Status("").IsValid())
	assert.False(t, Status("refunded").IsValid())
}

func TestPaymentStatus_IsValid(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, PaymentStatus("shipped").IsValid())
}

func TestOrder_Subtotal(t *testing.T) {
	o := &Order{Items: []Item{
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("6.50")},
		{ProductID: "p2", Quantity: 1, UnitPrice: decimal.RequireFromString("4.00")},
	}}
	assert.True(t, o.Subtotal().Equal(decimal.RequireFromString("17.00")), "got %s", o.Subtotal())

	empty := &Order{}
	assert.True(t, empty.Subtotal().IsZero())
}
