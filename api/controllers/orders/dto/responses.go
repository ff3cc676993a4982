package ordersdto

import (
	"time"

	"github.com/angelmondragon/cartengine/pkg/db/models"
)

type OrderResponse struct {
	ID            string         `json:"id"`
	BuyerID       string         `json:"buyer_id"`
	Subtotal      int64          `json:"subtotal"`
	DeliveryFee   int64          `json:"delivery_fee"`
	TotalAmount   int64          `json:"total_amount"`
	PaymentMethod string         `json:"payment_method"`
	PayerPhone    *string        `json:"payer_phone,omitempty"`
	DeliveryType  string         `json:"delivery_type"`
	CreatedAt     time.Time      `json:"created_at"`
	Items         []LineResponse `json:"items"`
}

type LineResponse struct {
	OrderID      string     `json:"order_id"`
	ProductID    string     `json:"product_id"`
	ProductName  string     `json:"product_name"`
	ImageURL     string     `json:"image_url,omitempty"`
	Quantity     int        `json:"quantity"`
	PricePerItem int64      `json:"price_per_item"`
	LineTotal    int64      `json:"line_total"`
	SellerUID    string     `json:"seller_uid"`
	SellerName   string     `json:"seller_name,omitempty"`
	Status       string     `json:"status"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// TransitionResponse reports the line after a status change. Changed is false
// when the request was a no-op, such as cancelling an already cancelled line.
type TransitionResponse struct {
	Line    LineResponse `json:"line"`
	Changed bool         `json:"changed"`
}

func NewOrderResponse(order *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:            order.ID,
		BuyerID:       order.BuyerID,
		Subtotal:      order.Subtotal,
		DeliveryFee:   order.DeliveryFee,
		TotalAmount:   order.TotalAmount,
		PaymentMethod: string(order.PaymentMethod),
		PayerPhone:    order.PayerPhone,
		DeliveryType:  string(order.DeliveryType),
		CreatedAt:     order.CreatedAt,
		Items:         NewLineResponses(order.Items),
	}
	return resp
}

func NewOrderResponses(orders []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, NewOrderResponse(&orders[i]))
	}
	return out
}

func NewLineResponse(line models.OrderLineItem) LineResponse {
	return LineResponse{
		OrderID:      line.OrderID,
		ProductID:    line.ProductID,
		ProductName:  line.ProductName,
		ImageURL:     line.ImageURL,
		Quantity:     line.Quantity,
		PricePerItem: line.PricePerItem,
		LineTotal:    line.LineTotal(),
		SellerUID:    line.SellerUID,
		SellerName:   line.SellerName,
		Status:       string(line.Status),
		PaidAt:       line.PaidAt,
		CancelledAt:  line.CancelledAt,
	}
}

func NewLineResponses(lines []models.OrderLineItem) []LineResponse {
	out := make([]LineResponse, 0, len(lines))
	for _, line := range lines {
		out = append(out, NewLineResponse(line))
	}
	return out
}
