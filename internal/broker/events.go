package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"marketplace-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

func listingKey(listingID int64) string {
	return fmt.Sprintf("listing-%d", listingID)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCompleted publishes OrderCompleted event
func (ep *EventPublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishListingCreated publishes ListingCreated event
func (ep *EventPublisher) PublishListingCreated(ctx context.Context, event *models.ListingCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishVoucherRedeemed publishes VoucherRedeemed event
func (ep *EventPublisher) PublishVoucherRedeemed(ctx context.Context, event *models.VoucherRedeemedEvent) error {
	return ep.producer.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// EventHandler decodes incoming events and routes them by type
type EventHandler struct {
	onOrderCreated       func(context.Context, *models.OrderCreatedEvent) error
	onOrderStatusChanged func(context.Context, *models.OrderStatusChangedEvent) error
	onOrderCompleted     func(context.Context, *models.OrderCompletedEvent) error
	onListingCreated     func(context.Context, *models.ListingCreatedEvent) error
	onVoucherRedeemed    func(context.Context, *models.VoucherRedeemedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

func (eh *EventHandler) OnOrderCreated(h func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = h
}

func (eh *EventHandler) OnOrderStatusChanged(h func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatusChanged = h
}

func (eh *EventHandler) OnOrderCompleted(h func(context.Context, *models.OrderCompletedEvent) error) {
	eh.onOrderCompleted = h
}

func (eh *EventHandler) OnListingCreated(h func(context.Context, *models.ListingCreatedEvent) error) {
	eh.onListingCreated = h
}

func (eh *EventHandler) OnVoucherRedeemed(h func(context.Context, *models.VoucherRedeemedEvent) error) {
	eh.onVoucherRedeemed = h
}

// ErrMalformedEvent marks a message that can never be decoded. Consumers skip
// it instead of retrying.
var ErrMalformedEvent = errors.New("malformed event")

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return eh.Dispatch(ctx, msg.Value)
}

// Dispatch decodes a raw event and calls the handler registered for its type.
// Unknown types and types without a handler are ignored.
func (eh *EventHandler) Dispatch(ctx context.Context, raw []byte) error {
	var base models.BaseEvent
	if err := json.Unmarshal(raw, &base); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformedEvent, err)
	}

	switch base.EventType {
	case models.EventTypeOrderCreated:
		return dispatch(ctx, raw, eh.onOrderCreated)
	case models.EventTypeOrderStatusChanged:
		return dispatch(ctx, raw, eh.onOrderStatusChanged)
	case models.EventTypeOrderCompleted:
		return dispatch(ctx, raw, eh.onOrderCompleted)
	case models.EventTypeListingCreated:
		return dispatch(ctx, raw, eh.onListingCreated)
	case models.EventTypeVoucherRedeemed:
		return dispatch(ctx, raw, eh.onVoucherRedeemed)
	}
	return nil
}

func dispatch[T any](ctx context.Context, raw []byte, handler func(context.Context, *T) error) error {
	if handler == nil {
		return nil
	}
	var event T
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("%w: %T: %v", ErrMalformedEvent, event, err)
	}
	return handler(ctx, &event)
}
