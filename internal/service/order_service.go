package service

import (
	"context"
	"errors"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService handles the order lifecycle: placing orders and moving them
// through the status table
type OrderService struct {
	store          *store.Store
	inventory      *InventoryLedger
	eventPublisher EventPublisher
	idempotency    idempotency
	txTimeout      time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service. idem may be nil.
func NewOrderService(
	store *store.Store,
	inventory *InventoryLedger,
	eventPublisher EventPublisher,
	idem IdempotencyStore,
	settings Settings,
) *OrderService {
	logger := util.GetLogger()
	return &OrderService{
		store:          store,
		inventory:      inventory,
		eventPublisher: eventPublisher,
		idempotency:    newIdempotency(idem, settings, logger),
		txTimeout:      settings.TxTimeout,
		logger:         logger,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	BuyerID        int64  `json:"-"`
	ListingID      int64  `json:"listing_id"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID     int64              `json:"order_id"`
	Status      models.OrderStatus `json:"status"`
	TotalAmount int64              `json:"total_amount"`
	Replayed    bool               `json:"replayed,omitempty"`
}

// CreateOrder records a buyer's intent to buy a listing. Stock is checked but
// not taken; that only happens when the order completes.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.Int64("buyer_id", req.BuyerID),
		attribute.Int64("listing_id", req.ListingID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = validateCreateOrder(req); err != nil {
		util.OrdersRejectedTotal.WithLabelValues(string(KindOf(err))).Inc()
		return nil, err
	}

	scope := actorScope("order", req.BuyerID)
	replayID, claimed, err := s.idempotency.claim(ctx, scope, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if replayID != 0 {
		return s.replayOrder(ctx, replayID, req.IdempotencyKey)
	}

	var (
		order    *models.Order
		sellerID int64
	)
	txCtx, cancel := withTimeout(ctx, s.txTimeout)
	defer cancel()
	err = s.store.WithTx(txCtx, func(tx *store.Tx) error {
		listing, err := tx.GetListing(txCtx, req.ListingID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(ErrListingNotFound, "id %d", req.ListingID)
		}
		if err != nil {
			return internalError("get listing", err)
		}
		if listing.SellerID == req.BuyerID {
			return validationError(ErrSelfPurchase, "")
		}
		if err := checkStock(listing, req.Quantity); err != nil {
			return err
		}

		item := &models.OrderItem{
			ListingID: listing.ID,
			Quantity:  req.Quantity,
			Price:     listing.Price,
		}
		order = &models.Order{
			BuyerID:     req.BuyerID,
			TotalAmount: item.Total(),
			Status:      models.OrderStatusPending,
		}
		if err := tx.CreateOrder(txCtx, order); err != nil {
			return internalError("create order", err)
		}

		item.OrderID = order.ID
		if err := tx.CreateOrderItem(txCtx, item); err != nil {
			return internalError("create order item", err)
		}

		sellerID = listing.SellerID
		return nil
	})
	if err != nil {
		err = asServiceError("create order", err)
		if claimed {
			s.idempotency.release(ctx, scope, req.IdempotencyKey)
		}
		util.OrdersRejectedTotal.WithLabelValues(string(KindOf(err))).Inc()
		return nil, err
	}
	if claimed {
		s.idempotency.complete(ctx, scope, req.IdempotencyKey, order.ID)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("listing_id", req.ListingID),
		zap.Int("quantity", req.Quantity))

	event := &models.OrderCreatedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		SellerID:    sellerID,
		ListingID:   req.ListingID,
		Quantity:    req.Quantity,
		TotalAmount: order.TotalAmount,
	}
	if perr := s.eventPublisher.PublishOrderCreated(ctx, event); perr != nil {
		s.publishFailed(event.EventType, perr)
	}

	return &CreateOrderResponse{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
	}, nil
}

func validateCreateOrder(req *CreateOrderRequest) error {
	if req.BuyerID <= 0 {
		return authorizationError(ErrNotOrderParty, "missing buyer")
	}
	if req.ListingID <= 0 {
		return validationError(ErrListingNotFound, "listing_id is required")
	}
	if req.Quantity <= 0 {
		return validationError(ErrInvalidQuantity, "")
	}
	return nil
}

func (s *OrderService) replayOrder(ctx context.Context, orderID int64, key string) (*CreateOrderResponse, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, internalError("get replayed order", err)
	}
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", order.ID))
	return &CreateOrderResponse{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Replayed:    true,
	}, nil
}

// TransitionRequest asks to move an order to a new status on behalf of an actor
type TransitionRequest struct {
	OrderID int64  `json:"-"`
	ActorID int64  `json:"-"`
	Status  string `json:"status"`
}

// TransitionStatus validates the requested transition against the status
// table and the actor's role, and applies it. Completing an order commits
// the ordered stock in the same transaction.
func (s *OrderService) TransitionStatus(ctx context.Context, req *TransitionRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TransitionStatus",
		attribute.Int64("order_id", req.OrderID),
		attribute.String("status", req.Status))
	var err error
	defer func() { util.EndSpan(span, err) }()

	target, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		err = validationError(err, "")
		util.OrderTransitionsRejectedTotal.WithLabelValues(string(KindValidation)).Inc()
		return nil, err
	}
	if req.ActorID <= 0 {
		err = authorizationError(ErrNotOrderParty, "missing actor")
		util.OrderTransitionsRejectedTotal.WithLabelValues(string(KindAuthorization)).Inc()
		return nil, err
	}

	var (
		order    *models.Order
		sellerID int64
		from     models.OrderStatus
		commits  []models.StockCommit
	)
	start := time.Now()
	txCtx, cancel := withTimeout(ctx, s.txTimeout)
	defer cancel()
	err = s.store.WithTx(txCtx, func(tx *store.Tx) error {
		var err error
		order, err = tx.LockOrder(txCtx, req.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(ErrOrderNotFound, "id %d", req.OrderID)
		}
		if err != nil {
			return internalError("lock order", err)
		}

		sellerID, err = tx.GetOrderSellerID(txCtx, order.ID)
		if err != nil {
			return internalError("get order seller", err)
		}

		party := partyOf(req.ActorID, order.BuyerID, sellerID)
		if party == models.PartyNone {
			return authorizationError(ErrNotOrderParty, "")
		}

		from = order.Status
		if from.Terminal() {
			return conflictError(ErrInvalidTransition, "order is already %s", from)
		}
		t, ok := models.LookupTransition(from, target)
		if !ok {
			return conflictError(ErrInvalidTransition, "%s -> %s", from, target)
		}
		if !t.Allows(party) {
			return authorizationError(ErrActorNotAllowed, "%s cannot move %s -> %s", party, from, target)
		}

		err = tx.UpdateOrderStatus(txCtx, order.ID, from, target)
		if errors.Is(err, store.ErrStale) {
			return conflictError(ErrInvalidTransition, "order changed concurrently")
		}
		if err != nil {
			return internalError("update order status", err)
		}

		if t.CommitsStock {
			commits, err = s.inventory.CommitFulfillment(txCtx, tx, order.ID)
			if err != nil {
				return internalError("commit fulfillment", err)
			}
		}

		order.Status = target
		order.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		err = asServiceError("transition order", err)
		util.OrderTransitionsRejectedTotal.WithLabelValues(string(KindOf(err))).Inc()
		s.logger.Info("Order transition rejected",
			zap.Int64("order_id", req.OrderID),
			zap.Int64("actor_id", req.ActorID),
			zap.String("target", string(target)),
			zap.Error(err))
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(from), string(target)).Inc()
	if commits != nil {
		util.FulfillmentLatency.Observe(time.Since(start).Seconds())
		recordCommits(commits)
	}
	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.Int64("actor_id", req.ActorID),
		zap.String("from", string(from)),
		zap.String("to", string(target)))

	changed := &models.OrderStatusChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		ActorID:   req.ActorID,
		BuyerID:   order.BuyerID,
		SellerID:  sellerID,
		From:      from,
		To:        target,
	}
	if perr := s.eventPublisher.PublishOrderStatusChanged(ctx, changed); perr != nil {
		s.publishFailed(changed.EventType, perr)
	}

	if commits != nil {
		completed := &models.OrderCompletedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeOrderCompleted),
			OrderID:   order.ID,
			BuyerID:   order.BuyerID,
			Commits:   commits,
		}
		if perr := s.eventPublisher.PublishOrderCompleted(ctx, completed); perr != nil {
			s.publishFailed(completed.EventType, perr)
		}
	}

	return order, nil
}

func partyOf(actorID, buyerID, sellerID int64) models.Party {
	var p models.Party
	if actorID == buyerID {
		p |= models.PartyBuyer
	}
	if actorID == sellerID {
		p |= models.PartySeller
	}
	return p
}

// OrderDetail is an order with its items
type OrderDetail struct {
	models.Order
	SellerID int64              `json:"seller_id"`
	Items    []models.OrderItem `json:"items"`
}

// GetOrder returns an order to its buyer or seller. Other users get not found.
func (s *OrderService) GetOrder(ctx context.Context, orderID, actorID int64) (*OrderDetail, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(ErrOrderNotFound, "id %d", orderID)
	}
	if err != nil {
		return nil, internalError("get order", err)
	}

	sellerID, err := s.store.GetOrderSellerID(ctx, orderID)
	if err != nil {
		return nil, internalError("get order seller", err)
	}
	if partyOf(actorID, order.BuyerID, sellerID) == models.PartyNone {
		return nil, notFoundError(ErrOrderNotFound, "id %d", orderID)
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, internalError("get order items", err)
	}
	return &OrderDetail{Order: *order, SellerID: sellerID, Items: items}, nil
}

// ListBuyerOrders returns the orders placed by buyerID
func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID int64) ([]models.OrderSummary, error) {
	orders, err := s.store.ListOrdersByBuyer(ctx, buyerID)
	if err != nil {
		return nil, internalError("list buyer orders", err)
	}
	return orders, nil
}

// ListSellerOrders returns the orders placed on sellerID's listings
func (s *OrderService) ListSellerOrders(ctx context.Context, sellerID int64) ([]models.OrderSummary, error) {
	orders, err := s.store.ListOrdersBySeller(ctx, sellerID)
	if err != nil {
		return nil, internalError("list seller orders", err)
	}
	return orders, nil
}

func (s *OrderService) publishFailed(eventType string, err error) {
	util.EventsPublishFailedTotal.WithLabelValues(eventType).Inc()
	s.logger.Error("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
}
