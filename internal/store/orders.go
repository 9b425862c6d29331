package store

import (
	"context"
	"time"

	"marketplace-service/internal/models"
)

const orderColumns = "id, buyer_id, total_amount, status, created_at, updated_at"

// CreateOrder creates a new order
func (t *Tx) CreateOrder(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	return t.insert(ctx, &order.ID,
		`INSERT INTO orders (buyer_id, total_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		order.BuyerID, order.TotalAmount, order.Status, order.CreatedAt, order.UpdatedAt)
}

// CreateOrderItem creates a new order item
func (t *Tx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	return t.insert(ctx, &item.ID,
		`INSERT INTO order_items (order_id, listing_id, quantity, price)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		item.OrderID, item.ListingID, item.Quantity, item.Price)
}

// GetOrderByID retrieves an order by ID
func (c conn) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := c.get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &order, nil
}

// LockOrder reads an order and holds its row lock until the transaction ends
func (t *Tx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := t.get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = ?"+t.forUpdate(), id); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (c conn) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := c.selectAll(ctx, &items,
		"SELECT id, order_id, listing_id, quantity, price FROM order_items WHERE order_id = ? ORDER BY id", orderID)
	return items, err
}

// GetOrderSellerID returns the seller of the listing an order was placed on
func (c conn) GetOrderSellerID(ctx context.Context, orderID int64) (int64, error) {
	var sellerID int64
	err := c.get(ctx, &sellerID,
		`SELECT l.seller_id
		FROM order_items oi
		JOIN listings l ON l.id = oi.listing_id
		WHERE oi.order_id = ?
		ORDER BY oi.id
		LIMIT 1`, orderID)
	return sellerID, err
}

// UpdateOrderStatus moves an order from one status to another. The write only
// applies while the row still holds the expected status.
func (t *Tx) UpdateOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) error {
	return t.execOne(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, time.Now().UTC(), orderID, from)
}

const orderSummaryQuery = `
	SELECT o.id, o.status, o.total_amount, o.created_at,
		l.id AS listing_id, l.name AS listing_name, oi.quantity,
		o.buyer_id, l.seller_id
	FROM orders o
	JOIN order_items oi ON oi.order_id = o.id
	JOIN listings l ON l.id = oi.listing_id`

// ListOrdersByBuyer returns the orders a user placed, newest first
func (c conn) ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]models.OrderSummary, error) {
	orders := []models.OrderSummary{}
	err := c.selectAll(ctx, &orders,
		orderSummaryQuery+" WHERE o.buyer_id = ? ORDER BY o.created_at DESC, o.id DESC", buyerID)
	return orders, err
}

// ListOrdersBySeller returns the orders placed on a seller's listings, newest first
func (c conn) ListOrdersBySeller(ctx context.Context, sellerID int64) ([]models.OrderSummary, error) {
	orders := []models.OrderSummary{}
	err := c.selectAll(ctx, &orders,
		orderSummaryQuery+" WHERE l.seller_id = ? ORDER BY o.created_at DESC, o.id DESC", sellerID)
	return orders, err
}

// IsEventProcessed checks if an event has been processed
func (c conn) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := c.get(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ?)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (c conn) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := c.exec(ctx,
		"INSERT INTO processed_events (event_id, event_type, processed_at) VALUES (?, ?, ?) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType, time.Now().UTC())
	return err
}
