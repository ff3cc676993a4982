package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/cartengine/internal/notifications"
	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"github.com/angelmondragon/cartengine/pkg/metrics"
	"github.com/angelmondragon/cartengine/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// LineTransitionInput identifies the order line being moved and who asks for it.
type LineTransitionInput struct {
	OrderID   string
	ProductID string
	Actor     Actor
}

// TransitionResult carries the line after the transition. Changed is false
// when the request was an idempotent no-op.
type TransitionResult struct {
	Line    models.OrderLineItem
	Changed bool
}

// LineStateMachine moves order lines between pending, paid and cancelled while
// keeping the stock ledger consistent with line status.
type LineStateMachine interface {
	MarkPaid(ctx context.Context, input LineTransitionInput) (*TransitionResult, error)
	MarkCancelled(ctx context.Context, input LineTransitionInput) (*TransitionResult, error)
}

type stateMachine struct {
	repo    Repository
	tx      txRunner
	ledger  stockLedger
	sink    notifications.Sink
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
	retry   db.RetryPolicy
	tracer  trace.Tracer
	now     func() time.Time
}

// StateMachineParams bundles the dependencies of the line state machine.
type StateMachineParams struct {
	Repo    Repository
	Tx      txRunner
	Ledger  stockLedger
	Sink    notifications.Sink
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
	Retry   db.RetryPolicy
}

func NewLineStateMachine(params StateMachineParams) (LineStateMachine, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	sink := params.Sink
	if sink == nil {
		sink = notifications.Nop{}
	}
	return &stateMachine{
		repo:    params.Repo,
		tx:      params.Tx,
		ledger:  params.Ledger,
		sink:    sink,
		logg:    params.Logger,
		metrics: params.Metrics,
		retry:   params.Retry,
		tracer:  tracing.Tracer("orders"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (m *stateMachine) MarkPaid(ctx context.Context, input LineTransitionInput) (*TransitionResult, error) {
	const op = "order_line.mark_paid"

	result, err := m.transition(ctx, op, input, m.markPaid)
	if err != nil {
		m.fail(ctx, input.Actor.UserID, op, err)
		return nil, err
	}
	m.metrics.IncTransition(enums.LineItemStatusPaid.String())
	m.logLine(ctx, input, "order_line.paid")
	m.succeed(ctx, input.Actor.UserID, op, "order line marked paid")
	return result, nil
}

func (m *stateMachine) markPaid(ctx context.Context, tx *gorm.DB, input LineTransitionInput) (*TransitionResult, error) {
	repo := m.repo.WithTx(tx)

	line, err := repo.FindLineForUpdate(ctx, input.OrderID, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !input.Actor.IsAdmin() && !input.Actor.sells(line) {
		return nil, forbidden("only the line's seller or an admin can mark it paid")
	}
	if line.Status != enums.LineItemStatusPending {
		return nil, invalidTransition(line.Status, enums.LineItemStatusPaid)
	}

	ok, err := m.ledger.WithTx(tx).DecrementIfAvailable(ctx, line.ProductID, line.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
			"order_id":   input.OrderID,
			"product_id": input.ProductID,
			"requested":  line.Quantity,
		}), "stock.decrement_rejected")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock to mark the line paid").
			WithDetails(map[string]any{
				"product_id": line.ProductID,
				"requested":  line.Quantity,
				"remedy":     pkgerrors.StockRemedy,
			})
	}

	now := m.now()
	if err := m.applyStatus(ctx, repo, line, enums.LineItemStatusPaid, now); err != nil {
		return nil, err
	}
	line.PaidAt = &now
	return &TransitionResult{Line: *line, Changed: true}, nil
}

func (m *stateMachine) MarkCancelled(ctx context.Context, input LineTransitionInput) (*TransitionResult, error) {
	const op = "order_line.mark_cancelled"

	result, err := m.transition(ctx, op, input, m.markCancelled)
	if err != nil {
		m.fail(ctx, input.Actor.UserID, op, err)
		return nil, err
	}
	if result.Changed {
		m.metrics.IncTransition(enums.LineItemStatusCancelled.String())
		m.logLine(ctx, input, "order_line.cancelled")
		m.succeed(ctx, input.Actor.UserID, op, "order line cancelled")
	} else {
		m.succeed(ctx, input.Actor.UserID, op, "order line already cancelled")
	}
	return result, nil
}

func (m *stateMachine) markCancelled(ctx context.Context, tx *gorm.DB, input LineTransitionInput) (*TransitionResult, error) {
	repo := m.repo.WithTx(tx)

	line, err := repo.FindLineForUpdate(ctx, input.OrderID, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !input.Actor.IsAdmin() && !input.Actor.sells(line) {
		order, err := repo.FindHeader(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}
		if order.BuyerID != input.Actor.UserID {
			return nil, forbidden("only the line's seller, the buyer or an admin can cancel it")
		}
		if line.Status == enums.LineItemStatusPaid {
			return nil, forbidden("buyers can only cancel lines that are still pending")
		}
	}

	switch line.Status {
	case enums.LineItemStatusCancelled:
		return &TransitionResult{Line: *line, Changed: false}, nil
	case enums.LineItemStatusPaid:
		if err := m.ledger.WithTx(tx).Increment(ctx, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
	}

	now := m.now()
	if err := m.applyStatus(ctx, repo, line, enums.LineItemStatusCancelled, now); err != nil {
		return nil, err
	}
	line.CancelledAt = &now
	return &TransitionResult{Line: *line, Changed: true}, nil
}

type transitionFunc func(ctx context.Context, tx *gorm.DB, input LineTransitionInput) (*TransitionResult, error)

// transition validates input and runs fn in a transaction, replaying the whole
// unit of work when storage reports a conflict.
func (m *stateMachine) transition(ctx context.Context, op string, input LineTransitionInput, fn transitionFunc) (result *TransitionResult, err error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	input.ProductID = strings.TrimSpace(input.ProductID)
	ctx, span := m.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("order.id", input.OrderID),
		attribute.String("product.id", input.ProductID),
		attribute.String("actor.role", input.Actor.Role.String()),
	))
	defer func() {
		if result != nil {
			span.SetAttributes(
				attribute.String("line.status", result.Line.Status.String()),
				attribute.Bool("line.changed", result.Changed),
			)
		}
		tracing.Finish(span, err)
	}()

	if input.OrderID == "" || input.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and product id are required")
	}
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}

	policy := m.retry
	policy.OnRetry = func(int, error) { m.metrics.IncConflictRetry(op) }

	err = db.RetryOnConflict(ctx, policy, func(ctx context.Context) error {
		return m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			res, err := fn(ctx, tx, input)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyStatus writes the new status only if the row still holds the status we
// read. A miss means another writer got there first.
func (m *stateMachine) applyStatus(ctx context.Context, repo Repository, line *models.OrderLineItem, to enums.LineItemStatus, at time.Time) error {
	updated, err := repo.UpdateLineStatus(ctx, line.OrderID, line.ProductID, line.Status, to, at)
	if err != nil {
		return err
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "order line changed concurrently").
			WithDetails(map[string]any{"order_id": line.OrderID, "product_id": line.ProductID})
	}
	line.Status = to
	line.UpdatedAt = at
	return nil
}

func (m *stateMachine) logLine(ctx context.Context, input LineTransitionInput, msg string) {
	ctx = m.logg.WithProductID(m.logg.WithOrderID(ctx, input.OrderID), input.ProductID)
	ctx = m.logg.WithFields(ctx, map[string]any{
		"actor_id":   input.Actor.UserID,
		"actor_role": input.Actor.Role.String(),
	})
	m.logg.Info(ctx, msg)
}

func (m *stateMachine) succeed(ctx context.Context, userID, op, message string) {
	notifications.Emit(ctx, m.sink, m.logg, notifications.Success(userID, op, message))
}

func (m *stateMachine) fail(ctx context.Context, userID, op string, err error) {
	message := "order line update failed"
	if typed := pkgerrors.As(err); typed != nil {
		message = typed.Message()
	}
	notifications.Emit(ctx, m.sink, m.logg, notifications.Failure(userID, op, message))
}

func invalidTransition(from, to enums.LineItemStatus) error {
	return pkgerrors.Validation(pkgerrors.ReasonInvalidTransition, fmt.Sprintf("cannot move line from %s to %s", from, to)).
		WithDetails(map[string]any{
			"reason": pkgerrors.ReasonInvalidTransition,
			"from":   from.String(),
			"to":     to.String(),
		})
}

func forbidden(message string) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, message)
}
