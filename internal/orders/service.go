package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/pagination"
)

// Service exposes read access to orders, scoped by who is asking.
type Service interface {
	GetOrder(ctx context.Context, actor Actor, orderID string) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, actor Actor, params pagination.Params) (*BuyerOrderList, error)
	ListSellerLines(ctx context.Context, actor Actor, status string, limit int) ([]models.OrderLineItem, error)
}

// BuyerOrderList is one page of a buyer's orders.
type BuyerOrderList struct {
	Orders     []models.Order
	NextCursor string
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

// GetOrder returns the order to its buyer, to any seller with a line in it and
// to admins.
func (s *service) GetOrder(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin(), order.BuyerID == actor.UserID:
		return order, nil
	case actor.Role == enums.RoleSeller && order.HasSeller(actor.UserID):
		return order, nil
	}
	return nil, forbidden("order is not visible to this user")
}

func (s *service) ListBuyerOrders(ctx context.Context, actor Actor, params pagination.Params) (*BuyerOrderList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListByBuyer(ctx, actor.UserID, params)
	if err != nil {
		return nil, err
	}

	list := &BuyerOrderList{Orders: rows}
	if list.Orders == nil {
		list.Orders = []models.Order{}
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// ListSellerLines lists lines sold by the actor, optionally filtered by status.
func (s *service) ListSellerLines(ctx context.Context, actor Actor, status string, limit int) ([]models.OrderLineItem, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != enums.RoleSeller && !actor.IsAdmin() {
		return nil, forbidden("seller role required")
	}

	var filter *enums.LineItemStatus
	if status = strings.TrimSpace(status); status != "" {
		parsed, err := enums.ParseLineItemStatus(status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter = &parsed
	}

	lines, err := s.repo.ListLinesBySeller(ctx, actor.UserID, filter, limit)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []models.OrderLineItem{}
	}
	return lines, nil
}

func requireActor(actor Actor) error {
	if strings.TrimSpace(actor.UserID) == "" || !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity required")
	}
	return nil
}
