package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/cartengine/pkg/enums"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"go.uber.org/multierr"
)

// Notification is user-facing feedback about a cart or checkout operation.
type Notification struct {
	Kind      enums.NotificationKind `json:"kind"`
	Message   string                 `json:"message"`
	UserID    string                 `json:"user_id,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	At        time.Time              `json:"at"`
}

// Sink receives notifications. Delivery is best effort; callers never branch on the result.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Success builds a success notification for the given user.
func Success(userID, operation, message string) Notification {
	return Notification{Kind: enums.NotificationKindSuccess, Message: message, UserID: userID, Operation: operation, At: time.Now().UTC()}
}

// Failure builds an error notification for the given user.
func Failure(userID, operation, message string) Notification {
	return Notification{Kind: enums.NotificationKindError, Message: message, UserID: userID, Operation: operation, At: time.Now().UTC()}
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, n Notification) error {
	var errs error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		errs = multierr.Append(errs, sink.Notify(ctx, n))
	}
	return errs
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// LogSink writes notifications to the structured log.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	if s == nil || s.logg == nil {
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"notification_kind": string(n.Kind),
		"operation":         n.Operation,
		"user_id":           n.UserID,
	})
	if n.Kind == enums.NotificationKindError {
		s.logg.Warn(ctx, "notification: "+n.Message)
		return nil
	}
	s.logg.Info(ctx, "notification: "+n.Message)
	return nil
}

// Emit sends n through sink and logs delivery failures. It never returns an error.
func Emit(ctx context.Context, sink Sink, logg *logger.Logger, n Notification) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, n); err != nil && logg != nil {
		logg.Error(ctx, "notification delivery failed", err)
	}
}
