package events

import (
	"context"
	"time"

	"go-cartsync/cartsync"
	"go-cartsync/models"
	"go-cartsync/store"

	"go.uber.org/zap"
)

// LogSink writes every event to the application log.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Record(_ context.Context, event models.CartEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int64("cart_version", event.CartVersion),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if !event.CartID.IsZero() {
		fields = append(fields, zap.String("cart_id", event.CartID.Hex()))
	}
	if !event.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if !event.GuestSessionID.IsZero() {
		fields = append(fields, zap.String("guest_session_id", event.GuestSessionID.Hex()))
	}
	if len(event.Attributes) > 0 {
		fields = append(fields, zap.Any("attributes", event.Attributes))
	}
	s.Logger.Info("cart event", fields...)
	return nil
}

// Fanout records to Primary inside the caller's transaction and hands the
// event to each secondary sink once that transaction commits. Secondary
// failures are logged and never fail the operation.
type Fanout struct {
	Primary     cartsync.EventSink
	Secondaries []cartsync.EventSink
	Logger      *zap.Logger
	// Timeout bounds each secondary delivery.
	Timeout time.Duration
}

func (f *Fanout) Record(ctx context.Context, event models.CartEvent) error {
	if f.Primary != nil {
		if err := f.Primary.Record(ctx, event); err != nil {
			return err
		}
	}
	if len(f.Secondaries) == 0 {
		return nil
	}
	store.AfterCommit(ctx, func() {
		f.deliver(event)
	})
	return nil
}

func (f *Fanout) deliver(event models.CartEvent) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = publishTimeout
	}
	for _, sink := range f.Secondaries {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := sink.Record(ctx, event)
		cancel()
		if err != nil && f.Logger != nil {
			f.Logger.Warn("failed to deliver cart event",
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
				zap.Error(err),
			)
		}
	}
}
