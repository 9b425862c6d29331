package worker

import (
	"context"
	"errors"
	"fmt"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageSource delivers raw event messages
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// EventLog records which events were already handled
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Notification is a message for one user about a marketplace event
type Notification struct {
	UserID  int64
	Kind    string
	Message string
	EventID string
}

// Notifier delivers notifications to users
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the service log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by the global logger
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info("Notification",
		zap.Int64("user_id", note.UserID),
		zap.String("kind", note.Kind),
		zap.String("message", note.Message),
		zap.String("event_id", note.EventID))
	return nil
}

// NotificationWorker turns domain events into user notifications. Each event
// is delivered at most once; redelivered events are skipped.
type NotificationWorker struct {
	source       MessageSource
	events       EventLog
	notifier     Notifier
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(source MessageSource, events EventLog, notifier Notifier) *NotificationWorker {
	w := &NotificationWorker{
		source:       source,
		events:       events,
		notifier:     notifier,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderCreated(w.handleOrderCreated)
	w.eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	w.eventHandler.OnOrderCompleted(w.handleOrderCompleted)
	w.eventHandler.OnListingCreated(w.handleListingCreated)
	w.eventHandler.OnVoucherRedeemed(w.handleVoucherRedeemed)

	return w
}

// Start consumes events until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.source.StartConsuming(ctx, w.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.source.Close()
}

// HandleMessage processes one consumed message
func (w *NotificationWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// deliver sends notes unless the event was handled before, then marks it handled
func (w *NotificationWorker) deliver(ctx context.Context, base models.BaseEvent, notes ...Notification) error {
	done, err := w.events.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event %s: %w", base.EventID, err)
	}
	if done {
		w.logger.Debug("Skipping processed event",
			zap.String("event_id", base.EventID),
			zap.String("event_type", base.EventType))
		return nil
	}

	for _, n := range notes {
		n.EventID = base.EventID
		if err := w.notifier.Notify(ctx, n); err != nil {
			return fmt.Errorf("failed to notify user %d: %w", n.UserID, err)
		}
	}

	err = w.events.MarkEventProcessed(ctx, base.EventID, base.EventType)
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("failed to mark event %s: %w", base.EventID, err)
	}
	return nil
}

func (w *NotificationWorker) handleOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	return w.deliver(ctx, e.BaseEvent, Notification{
		UserID:  e.SellerID,
		Kind:    e.EventType,
		Message: fmt.Sprintf("New purchase request #%d for %d unit(s) of listing %d", e.OrderID, e.Quantity, e.ListingID),
	})
}

func (w *NotificationWorker) handleOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	// tell the party that did not act
	recipient := e.BuyerID
	if e.ActorID == e.BuyerID {
		recipient = e.SellerID
	}
	return w.deliver(ctx, e.BaseEvent, Notification{
		UserID:  recipient,
		Kind:    e.EventType,
		Message: fmt.Sprintf("Order #%d moved from %s to %s", e.OrderID, e.From, e.To),
	})
}

func (w *NotificationWorker) handleOrderCompleted(ctx context.Context, e *models.OrderCompletedEvent) error {
	var notes []Notification
	for _, c := range e.Commits {
		if c.Shortfall() == 0 {
			continue
		}
		notes = append(notes, Notification{
			UserID:  e.BuyerID,
			Kind:    e.EventType,
			Message: fmt.Sprintf("Order #%d: listing %d had only %d of %d unit(s) left", e.OrderID, c.ListingID, c.Taken, c.Ordered),
		})
	}
	return w.deliver(ctx, e.BaseEvent, notes...)
}

func (w *NotificationWorker) handleListingCreated(ctx context.Context, e *models.ListingCreatedEvent) error {
	msg := fmt.Sprintf("Listing %d posted, fee %d (%s)", e.ListingID, e.Fee.FeeAfter, e.Fee.Source)
	if e.Fee.Source == models.FeeSourceFreeQuota {
		msg = fmt.Sprintf("Listing %d posted for free, %d free listing(s) left", e.ListingID, e.Fee.FreeRemaining)
	}
	return w.deliver(ctx, e.BaseEvent, Notification{
		UserID:  e.SellerID,
		Kind:    e.EventType,
		Message: msg,
	})
}

func (w *NotificationWorker) handleVoucherRedeemed(ctx context.Context, e *models.VoucherRedeemedEvent) error {
	return w.deliver(ctx, e.BaseEvent, Notification{
		UserID:  e.SellerID,
		Kind:    e.EventType,
		Message: fmt.Sprintf("Voucher %s saved %d on listing %d", e.Code, e.Discount, e.ListingID),
	})
}
