package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/shopfront/commerce/internal/domain/product"
)

type productResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Category string   `json:"category"`
	Image    ImageSet `json:"image"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = h.productResponse(p)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.productResponse(*p))
}

func (h *Handler) productResponse(p product.Product) productResponse {
	return productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price.InexactFloat64(),
		Category: p.Category,
		Image:    h.mapper.images.Resolve(p.ImageRef),
	}
}
