package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/commerce/internal/domain/coupon"
	"github.com/shopfront/commerce/internal/domain/order"
)

func TestRespondDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
		wantState  string
	}{
		{
			name:       "missing reason is a bad request",
			err:        order.ErrReasonRequired,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrapped sentinel still maps",
			err:        errors.Wrap(order.ErrConfirmerRequired, "update payment"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "coupon build violations are a bad request",
			err:        &coupon.ValidationError{Violations: []string{"code is required"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "forbidden",
			err:        &order.ForbiddenError{UserID: "user-2", OrderID: "ord-1"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "order not found",
			err:        order.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "coupon not found",
			err:        coupon.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid transition is a conflict carrying the current state",
			err:        &order.InvalidTransitionError{From: order.StatusDelivered, To: order.StatusConfirmed},
			wantStatus: http.StatusConflict,
			wantState:  "delivered",
		},
		{
			name:       "version conflict",
			err:        order.ErrVersionConflict,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "ineligible coupon carries the reason code",
			err:        &coupon.IneligibleError{Code: "SAVE20", Reason: coupon.ReasonMinOrderValue},
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: string(coupon.ReasonMinOrderValue),
		},
		{
			name:       "unknown errors are internal",
			err:        errors.New("pool exhausted"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			respondDomainError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, tt.wantReason, body.Reason)
			assert.Equal(t, tt.wantState, body.State)

			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body.Message)
			}
		})
	}
}
