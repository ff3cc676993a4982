package cartdto

// DefaultAddQuantity applies when an add-item payload omits quantity.
const DefaultAddQuantity = 1

// AddItemRequest is the payload for POST /api/v1/cart/items.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Quantity  *int   `json:"quantity"`
}

// QuantityOrDefault returns the requested quantity, or DefaultAddQuantity when
// the field was omitted. An explicit zero is passed through so the service can
// reject it.
func (r AddItemRequest) QuantityOrDefault() int {
	if r.Quantity == nil {
		return DefaultAddQuantity
	}
	return *r.Quantity
}

// UpdateQuantityRequest is the payload for PATCH /api/v1/cart/items/{productId}.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}
