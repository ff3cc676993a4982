package cart

import (
	"net/http"

	cartdto "github.com/angelmondragon/cartengine/api/controllers/cart/dto"
	"github.com/angelmondragon/cartengine/api/middleware"
	"github.com/angelmondragon/cartengine/api/responses"
	"github.com/angelmondragon/cartengine/api/validators"
	cartsvc "github.com/angelmondragon/cartengine/internal/cart"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/logger"
)

const maxProductIDLen = 128

// Fetch returns the caller's cart. A buyer who never added anything gets an empty cart.
func Fetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := requireService(w, r, svc, logg)
		if !ok {
			return
		}

		cart, err := svc.GetCart(r.Context(), buyerID)
		writeCart(w, r, logg, buyerID, cart, err)
	}
}

// AddItem adds a product to the cart or bumps the quantity of an existing line.
func AddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := requireService(w, r, svc, logg)
		if !ok {
			return
		}

		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.AddItem(r.Context(), buyerID, payload.ProductID, payload.QuantityOrDefault())
		writeCart(w, r, logg, buyerID, cart, err)
	}
}

func UpdateQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := requireService(w, r, svc, logg)
		if !ok {
			return
		}

		var payload cartdto.UpdateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := validators.PathParam(r, "productId", maxProductIDLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.UpdateQuantity(r.Context(), buyerID, productID, payload.Quantity)
		writeCart(w, r, logg, buyerID, cart, err)
	}
}

func RemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := requireService(w, r, svc, logg)
		if !ok {
			return
		}

		productID, err := validators.PathParam(r, "productId", maxProductIDLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.RemoveItem(r.Context(), buyerID, productID)
		writeCart(w, r, logg, buyerID, cart, err)
	}
}

func Clear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := requireService(w, r, svc, logg)
		if !ok {
			return
		}

		cart, err := svc.ClearCart(r.Context(), buyerID)
		writeCart(w, r, logg, buyerID, cart, err)
	}
}

func requireService(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, logg *logger.Logger) (string, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return "", false
	}
	buyerID := middleware.UserIDFromContext(r.Context())
	if buyerID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return buyerID, true
}

func writeCart(w http.ResponseWriter, r *http.Request, logg *logger.Logger, buyerID string, cart *models.Cart, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	resp, err := cartdto.NewCartResponse(buyerID, cart)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, resp)
}
