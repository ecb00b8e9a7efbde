package handler

import (
	"strings"
	"time"

	"github.com/shopfront/commerce/internal/domain/order"
)

// ImageSet holds the responsive image URLs resolved for one image reference.
type ImageSet struct {
	Thumbnail string `json:"thumbnail"`
	Mobile    string `json:"mobile"`
	Tablet    string `json:"tablet"`
	Desktop   string `json:"desktop"`
}

// ImageResolver resolves a raw image reference into a responsive image set.
// Image storage is an external collaborator; the mapper only depends on this
// seam.
type ImageResolver interface {
	Resolve(ref string) ImageSet
}

// BaseURLResolver resolves image references against a CDN base URL with one
// path segment per size variant.
type BaseURLResolver struct {
	Base string
}

// Resolve builds the four size variants for ref. An empty reference resolves
// to an empty set.
func (r BaseURLResolver) Resolve(ref string) ImageSet {
	if ref == "" {
		return ImageSet{}
	}
	base := strings.TrimSuffix(r.Base, "/")
	return ImageSet{
		Thumbnail: base + "/thumbnail/" + ref,
		Mobile:    base + "/mobile/" + ref,
		Tablet:    base + "/tablet/" + ref,
		Desktop:   base + "/desktop/" + ref,
	}
}

// OrderItemResponse is the external representation of one order line.
type OrderItemResponse struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice float64  `json:"unit_price"`
	Image     ImageSet `json:"image"`
}

// OrderResponse is the external representation of an order.
type OrderResponse struct {
	ID                 string              `json:"id"`
	Number             string              `json:"number"`
	UserID             string              `json:"user_id"`
	Status             string              `json:"status"`
	PaymentStatus      string              `json:"payment_status"`
	PaymentConfirmedBy string              `json:"payment_confirmed_by,omitempty"`
	TrackingNumber     string              `json:"tracking_number,omitempty"`
	ShippingProvider   string              `json:"shipping_provider,omitempty"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	ReturnReason       string              `json:"return_reason,omitempty"`
	Items              []OrderItemResponse `json:"items"`
	Subtotal           float64             `json:"subtotal"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Mapper shapes persisted orders into their external representation. It is
// pure: it never mutates its input and tolerates orders with no items.
type Mapper struct {
	images ImageResolver
}

// NewMapper creates a Mapper using the given image resolver.
func NewMapper(images ImageResolver) *Mapper {
	return &Mapper{images: images}
}

// Order maps one order. Items is always a non-nil slice so the JSON
// representation is [] rather than null.
func (m *Mapper) Order(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Image:     m.images.Resolve(it.ImageRef),
		}
	}

	return OrderResponse{
		ID:                 o.ID,
		Number:             o.Number,
		UserID:             o.UserID,
		Status:             o.Status.String(),
		PaymentStatus:      string(o.PaymentStatus),
		PaymentConfirmedBy: o.PaymentConfirmedBy,
		TrackingNumber:     o.TrackingNumber,
		ShippingProvider:   o.ShippingProvider,
		CancellationReason: o.CancellationReason,
		ReturnReason:       o.ReturnReason,
		Items:              items,
		Subtotal:           o.Subtotal().InexactFloat64(),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

// Orders maps a slice of orders, preserving order.
func (m *Mapper) Orders(list []order.Order) []OrderResponse {
	out := make([]OrderResponse, len(list))
	for i := range list {
		out[i] = m.Order(&list[i])
	}
	return out
}
