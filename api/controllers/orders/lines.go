package orders

import (
	"context"
	"net/http"

	ordersdto "github.com/angelmondragon/cartengine/api/controllers/orders/dto"
	"github.com/angelmondragon/cartengine/api/middleware"
	"github.com/angelmondragon/cartengine/api/responses"
	"github.com/angelmondragon/cartengine/api/validators"
	internalorders "github.com/angelmondragon/cartengine/internal/orders"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/logger"
)

type transitionFunc func(ctx context.Context, input internalorders.LineTransitionInput) (*internalorders.TransitionResult, error)

// MarkPaid moves a pending line to paid and takes its quantity out of stock.
func MarkPaid(sm internalorders.LineStateMachine, logg *logger.Logger) http.HandlerFunc {
	if sm == nil {
		return unavailable(logg)
	}
	return transition(sm.MarkPaid, logg)
}

// Cancel cancels a line, restocking it when it had already been paid.
func Cancel(sm internalorders.LineStateMachine, logg *logger.Logger) http.HandlerFunc {
	if sm == nil {
		return unavailable(logg)
	}
	return transition(sm.MarkCancelled, logg)
}

func transition(fn transitionFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.PathParam(r, "orderId", maxIDLen)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		productID, err := validators.PathParam(r, "productId", maxIDLen)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input := internalorders.LineTransitionInput{
			OrderID:   orderID,
			ProductID: productID,
			Actor:     middleware.ActorFromContext(ctx),
		}

		if logg != nil {
			ctx = logg.WithProductID(logg.WithOrderID(ctx, input.OrderID), input.ProductID)
		}

		result, err := fn(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersdto.TransitionResponse{
			Line:    ordersdto.NewLineResponse(result.Line),
			Changed: result.Changed,
		})
	}
}

func unavailable(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order state machine unavailable"))
	}
}
