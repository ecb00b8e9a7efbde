package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shopfront/commerce/internal/domain/coupon"
	"github.com/shopfront/commerce/internal/domain/order"
)

// errorResponse is the uniform error payload.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	State   string `json:"state,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Code: status, Message: message})
}

// respondDomainError maps a domain error onto the HTTP taxonomy: validation
// failures are 400, authorization failures 403, missing records 404, state
// machine rejections 409 (with the current state included), and coupon
// ineligibility 422 (with the failed rule's reason code). Anything else is a
// 500 and gets logged.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		transitionErr *order.InvalidTransitionError
		forbiddenErr  *order.ForbiddenError
		buildErr      *coupon.ValidationError
		ineligibleErr *coupon.IneligibleError
	)

	switch {
	case errors.Is(err, order.ErrReasonRequired),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidPayment),
		errors.Is(err, order.ErrConfirmerRequired),
		errors.Is(err, order.ErrInvalidDateRange):
		respondError(w, http.StatusBadRequest, err.Error())

	case errors.As(err, &buildErr):
		respondError(w, http.StatusBadRequest, buildErr.Error())

	case errors.As(err, &forbiddenErr):
		respondError(w, http.StatusForbidden, forbiddenErr.Error())

	case errors.Is(err, order.ErrNotFound), errors.Is(err, coupon.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())

	case errors.As(err, &transitionErr):
		respondJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: transitionErr.Error(),
			State:   transitionErr.From.String(),
		})

	case errors.Is(err, order.ErrVersionConflict):
		respondError(w, http.StatusConflict, err.Error())

	case errors.As(err, &ineligibleErr):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: ineligibleErr.Error(),
			Reason:  string(ineligibleErr.Reason),
		})

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
