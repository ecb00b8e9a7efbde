package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront/commerce/internal/domain/order"
)

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	o, err := h.orders.GetByID(r.Context(), orderID, a)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.mapper.Order(o))
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	number := chi.URLParam(r, "orderNumber")

	o, err := h.orders.GetByNumber(r.Context(), number, a)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.mapper.Order(o))
}

// orderPage is the paginated order listing payload.
type orderPage struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	page, err := h.orders.ListForUser(r.Context(), a, listFilterFromQuery(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orderPage{
		Orders: h.mapper.Orders(page.Orders),
		Total:  page.Total,
		Page:   page.Page,
		Limit:  page.Limit,
	})
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	page, err := h.orders.ListAll(r.Context(), a, listFilterFromQuery(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orderPage{
		Orders: h.mapper.Orders(page.Orders),
		Total:  page.Total,
		Page:   page.Page,
		Limit:  page.Limit,
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusBadRequest, "status is required")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), orderID, order.Status(req.Status), req.Note, a.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.mapper.Order(o))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.Cancel(r.Context(), orderID, req.Reason, a)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.mapper.Order(o))
}

func (h *Handler) returnOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.Return(r.Context(), orderID, req.Reason, a)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.mapper.Order(o))
}

type updateTrackingRequest struct {
	TrackingNumber   string `json:"tracking_number"`
	ShippingProvider string `json:"shipping_provider"`
}

func (h *Handler) updateTracking(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	var req updateTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TrackingNumber == "" {
		respondError(w, http.StatusBadRequest, "tracking_number is required")
		return
	}

	o, err := h.orders.UpdateTracking(r.Context(), orderID, req.TrackingNumber, req.ShippingProvider)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.mapper.Order(o))
}

type updatePaymentRequest struct {
	Status  string `json:"status"`
	Details struct {
		ConfirmedBy string `json:"confirmed_by"`
		Reference   string `json:"reference"`
	} `json:"details"`
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	var req updatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusBadRequest, "status is required")
		return
	}

	o, err := h.orders.UpdatePaymentStatus(r.Context(), orderID, order.PaymentStatus(req.Status), order.PaymentDetails{
		ConfirmedBy: req.Details.ConfirmedBy,
		Reference:   req.Details.Reference,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.mapper.Order(o))
}

type orderStatsResponse struct {
	TotalOrders int64            `json:"total_orders"`
	ByStatus    map[string]int64 `json:"by_status"`
	TotalSpent  float64          `json:"total_spent"`
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	stats, err := h.orders.Stats(r.Context(), a, r.URL.Query().Get("user_id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	byStatus := make(map[string]int64, len(stats.ByStatus))
	for s, n := range stats.ByStatus {
		byStatus[s.String()] = n
	}
	respondJSON(w, http.StatusOK, orderStatsResponse{
		TotalOrders: stats.TotalOrders,
		ByStatus:    byStatus,
		TotalSpent:  stats.TotalSpent.InexactFloat64(),
	})
}

type revenueResponse struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Orders int64   `json:"orders"`
	Total  float64 `json:"total"`
}

func (h *Handler) revenueReport(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if q.Get("start_date") == "" || q.Get("end_date") == "" {
		respondError(w, http.StatusBadRequest, "start_date and end_date are required")
		return
	}
	from, err := time.Parse("2006-01-02", q.Get("start_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", q.Get("end_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}

	rev, err := h.orders.RevenueReport(r.Context(), a, from, to)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, revenueResponse{
		From:   rev.From.Format("2006-01-02"),
		To:     rev.To.Format("2006-01-02"),
		Orders: rev.Orders,
		Total:  rev.Total.InexactFloat64(),
	})
}

type sweepRequest struct {
	HoursAgo int `json:"hours_ago"`
}

type sweepResponse struct {
	Cancelled []string `json:"cancelled"`
	Count     int      `json:"count"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
}

func (h *Handler) sweepStaleOrders(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	req := sweepRequest{HoursAgo: 24}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.HoursAgo <= 0 {
		req.HoursAgo = 24
	}

	result, err := h.orders.AutoCancelPending(r.Context(), time.Duration(req.HoursAgo)*time.Hour)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	cancelled := result.Cancelled
	if cancelled == nil {
		cancelled = []string{}
	}
	respondJSON(w, http.StatusOK, sweepResponse{
		Cancelled: cancelled,
		Count:     len(result.Cancelled),
		Skipped:   result.Skipped,
		Failed:    len(result.Failures),
	})
}

func listFilterFromQuery(r *http.Request) order.ListFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return order.ListFilter{
		Status:        order.Status(q.Get("status")),
		PaymentStatus: order.PaymentStatus(q.Get("payment_status")),
		Page:          page,
		Limit:         limit,
		SortBy:        q.Get("sort"),
		SortOrder:     q.Get("order"),
	}
}
