package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopfront/commerce/internal/domain/coupon"
)

type createCouponRequest struct {
	Code              string          `json:"code"`
	Description       string          `json:"description"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MinOrderValue     decimal.Decimal `json:"min_order_value"`
	MaxDiscount       decimal.Decimal `json:"max_discount"`
	UsageLimit        int             `json:"usage_limit"`
	UsageLimitPerUser int             `json:"usage_limit_per_user"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	Categories        []string        `json:"categories"`
	Products          []string        `json:"products"`
	Type              string          `json:"type"`
	Visibility        string          `json:"visibility"`
	AssignedUsers     []string        `json:"assigned_users"`
	Active            bool            `json:"active"`
}

type couponResponse struct {
	Code          string   `json:"code"`
	Description   string   `json:"description"`
	DiscountType  string   `json:"discount_type"`
	DiscountValue float64  `json:"discount_value"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	Type          string   `json:"type"`
	Visibility    string   `json:"visibility"`
	Active        bool     `json:"active"`
	Categories    []string `json:"categories"`
	Products      []string `json:"products"`
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b := coupon.NewBuilder().
		Code(req.Code).
		Description(req.Description).
		DiscountType(coupon.DiscountType(req.DiscountType)).
		DiscountValue(req.DiscountValue).
		MinOrderValue(req.MinOrderValue).
		MaxDiscount(req.MaxDiscount).
		UsageLimit(req.UsageLimit).
		UsageLimitPerUser(req.UsageLimitPerUser).
		DateRange(req.StartDate, req.EndDate).
		Active(req.Active).
		ForCategories(req.Categories...).
		ForProducts(req.Products...)
	if req.Type != "" {
		b.Type(coupon.Type(req.Type))
	}
	if req.Visibility != "" {
		b.Visibility(coupon.Visibility(req.Visibility))
	}
	if len(req.AssignedUsers) > 0 {
		b.AssignedUsers(req.AssignedUsers...)
	}

	c, err := b.Build()
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	if err := h.couponRepo.Create(r.Context(), c); err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, couponResponse{
		Code:          c.Code,
		Description:   c.Description,
		DiscountType:  string(c.DiscountType),
		DiscountValue: c.DiscountValue.InexactFloat64(),
		StartDate:     c.StartDate.Format(time.RFC3339),
		EndDate:       c.EndDate.Format(time.RFC3339),
		Type:          string(c.Type),
		Visibility:    string(c.Visibility),
		Active:        c.Active,
		Categories:    c.Categories,
		Products:      c.Products,
	})
}

type evaluateCouponRequest struct {
	Code       string          `json:"code"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Categories []string        `json:"categories"`
	Products   []string        `json:"products"`
}

type discountResponse struct {
	Code        string  `json:"code"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

func (h *Handler) evaluateCoupon(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req evaluateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "code is required")
		return
	}

	d, err := h.coupons.Evaluate(r.Context(), req.Code, coupon.OrderContext{
		UserID:     a.UserID,
		Subtotal:   req.Subtotal,
		Categories: req.Categories,
		Products:   req.Products,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, discountResponse{
		Code:        d.Code,
		Amount:      d.Amount.InexactFloat64(),
		Description: d.Description,
	})
}
