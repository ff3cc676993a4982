package controllers

import (
	"net/http"

	ordersdto "github.com/angelmondragon/cartengine/api/controllers/orders/dto"
	"github.com/angelmondragon/cartengine/api/middleware"
	"github.com/angelmondragon/cartengine/api/responses"
	"github.com/angelmondragon/cartengine/api/validators"
	checkoutsvc "github.com/angelmondragon/cartengine/internal/checkout"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/logger"
)

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"max=32"`
	DeliveryType  string `json:"delivery_type" validate:"max=32"`
	PayerPhone    string `json:"payer_phone" validate:"max=32"`
}

type partialCheckoutRequest struct {
	checkoutRequest
	ProductIDs []string `json:"product_ids" validate:"max=200,dive,max=128"`
}

func (r checkoutRequest) toInput(buyerID string) checkoutsvc.Input {
	return checkoutsvc.Input{
		BuyerID:       buyerID,
		PaymentMethod: r.PaymentMethod,
		DeliveryType:  r.DeliveryType,
		PayerPhone:    r.PayerPhone,
	}
}

// Checkout converts the caller's whole cart into one order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.FullCheckout(r.Context(), payload.toInput(middleware.UserIDFromContext(r.Context())))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ordersdto.NewOrderResponse(order))
	}
}

// PartialCheckout converts the selected cart lines into one order and leaves the rest in the cart.
func PartialCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload partialCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.PartialInput{
			Input:      payload.toInput(middleware.UserIDFromContext(r.Context())),
			ProductIDs: payload.ProductIDs,
		}
		order, err := svc.PartialCheckout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ordersdto.NewOrderResponse(order))
	}
}
