package cartdto

import (
	"time"

	"github.com/angelmondragon/cartengine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
)

type CartResponse struct {
	BuyerID   string             `json:"buyer_id"`
	Items     []CartItemResponse `json:"items"`
	ItemCount int                `json:"item_count"`
	Total     int64              `json:"total"`
	UpdatedAt *time.Time         `json:"updated_at,omitempty"`
}

type CartItemResponse struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	ImageURL    string    `json:"image_url,omitempty"`
	Price       int64     `json:"price"`
	Quantity    int       `json:"quantity"`
	LineTotal   int64     `json:"line_total"`
	SellerUID   string    `json:"seller_uid"`
	SellerName  string    `json:"seller_name,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// NewCartResponse renders a cart. A nil cart renders as empty. Totals that
// overflow int64 minor units fail the render.
func NewCartResponse(buyerID string, cart *models.Cart) (CartResponse, error) {
	resp := CartResponse{BuyerID: buyerID, Items: []CartItemResponse{}}
	if cart == nil {
		return resp, nil
	}
	for _, item := range cart.Items {
		lineTotal, err := item.LineTotal()
		if err != nil {
			return CartResponse{}, amountOverflow(err, item.ProductID)
		}
		resp.Items = append(resp.Items, CartItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ImageURL:    item.ImageURL,
			Price:       item.Price,
			Quantity:    item.Quantity,
			LineTotal:   lineTotal,
			SellerUID:   item.SellerUID,
			SellerName:  item.SellerName,
			AddedAt:     item.AddedAt,
		})
	}
	total, err := cart.Total()
	if err != nil {
		return CartResponse{}, amountOverflow(err, "")
	}
	resp.ItemCount = cart.ItemCount()
	resp.Total = total
	if !cart.UpdatedAt.IsZero() {
		updated := cart.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp, nil
}

func amountOverflow(err error, productID string) error {
	details := map[string]any{"reason": pkgerrors.ReasonAmountOverflow}
	if productID != "" {
		details["product_id"] = productID
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart total is too large").WithDetails(details)
}
