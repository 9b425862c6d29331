package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCompleted     = "ORDER_COMPLETED"
	EventTypeListingCreated     = "LISTING_CREATED"
	EventTypeVoucherRedeemed    = "VOUCHER_REDEEMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderCreatedEvent published when a buyer places an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64 `json:"order_id"`
	BuyerID     int64 `json:"buyer_id"`
	SellerID    int64 `json:"seller_id"`
	ListingID   int64 `json:"listing_id"`
	Quantity    int   `json:"quantity"`
	TotalAmount int64 `json:"total_amount"`
}

// OrderStatusChangedEvent published on every accepted transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID  int64       `json:"order_id"`
	ActorID  int64       `json:"actor_id"`
	BuyerID  int64       `json:"buyer_id"`
	SellerID int64       `json:"seller_id"`
	From     OrderStatus `json:"from"`
	To       OrderStatus `json:"to"`
}

// StockCommit is the inventory effect of fulfilling one order item
type StockCommit struct {
	ListingID int64 `json:"listing_id"`
	Ordered   int   `json:"ordered"`
	Taken     int   `json:"taken"`
	Remaining int   `json:"remaining"`
}

// Shortfall returns the ordered units that were not in stock
func (c StockCommit) Shortfall() int {
	return c.Ordered - c.Taken
}

// OrderCompletedEvent published when fulfillment committed stock
type OrderCompletedEvent struct {
	BaseEvent
	OrderID int64         `json:"order_id"`
	BuyerID int64         `json:"buyer_id"`
	Commits []StockCommit `json:"commits"`
}

// ListingCreatedEvent published when a listing and its fee are committed
type ListingCreatedEvent struct {
	BaseEvent
	ListingID  int64     `json:"listing_id"`
	SellerID   int64     `json:"seller_id"`
	CategoryID int64     `json:"category_id"`
	Fee        FeeResult `json:"fee"`
}

// VoucherRedeemedEvent published when a voucher discount was consumed
type VoucherRedeemedEvent struct {
	BaseEvent
	VoucherID int64  `json:"voucher_id"`
	Code      string `json:"code"`
	SellerID  int64  `json:"seller_id"`
	ListingID int64  `json:"listing_id"`
	Discount  int64  `json:"discount"`
}
