package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront/commerce/internal/domain/auth"
	"github.com/shopfront/commerce/internal/domain/coupon"
	"github.com/shopfront/commerce/internal/domain/order"
	"github.com/shopfront/commerce/internal/domain/product"
)

// Handler serves the storefront HTTP API, delegating business logic to the
// order service and coupon evaluator. The auth middleware is expected to have
// resolved an actor into the request context before any route is reached.
type Handler struct {
	orders     *order.Service
	coupons    *coupon.Evaluator
	couponRepo coupon.Repository
	products   product.Repository
	mapper     *Mapper
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	coupons *coupon.Evaluator,
	couponRepo coupon.Repository,
	products product.Repository,
	mapper *Mapper,
) *Handler {
	return &Handler{
		orders:     orders,
		coupons:    coupons,
		couponRepo: couponRepo,
		products:   products,
		mapper:     mapper,
	}
}

// Routes builds the API route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listMyOrders)
		r.Get("/stats", h.orderStats)
		r.Get("/number/{orderNumber}", h.getOrderByNumber)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
		r.Post("/{orderID}/return", h.returnOrder)
		r.Patch("/{orderID}/status", h.updateOrderStatus)
		r.Patch("/{orderID}/tracking", h.updateTracking)
		r.Patch("/{orderID}/payment-status", h.updatePaymentStatus)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/orders", h.listAllOrders)
		r.Get("/orders/revenue", h.revenueReport)
		r.Post("/orders/sweep", h.sweepStaleOrders)
		r.Post("/coupons", h.createCoupon)
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/evaluate", h.evaluateCoupon)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{productID}", h.getProduct)
	})

	return r
}

// actor extracts the authenticated actor, or writes 401 and returns false.
func actor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
	}
	return a, ok
}

// requireAdmin extracts the actor and writes 403 unless it is an admin.
func requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	a, ok := actor(w, r)
	if !ok {
		return a, false
	}
	if !a.Admin {
		respondError(w, http.StatusForbidden, "admin access required")
		return a, false
	}
	return a, true
}
