package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sellerID = int64(10)
	buyerID  = int64(20)
)

func TestCreateOrderDoesNotReserveStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.seedListing(t, sellerID, 2500, 5)

	resp, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{BuyerID: buyerID, ListingID: listing.ID, Quantity: 3})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, resp.Status)
	assert.Equal(t, int64(7500), resp.TotalAmount)
	assert.Equal(t, 5, f.listing(t, listing.ID).Quantity)
	assert.Equal(t, []string{models.EventTypeOrderCreated}, f.events.types())

	detail, err := f.orders.GetOrder(ctx, resp.OrderID, buyerID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, int64(2500), detail.Items[0].Price)
	assert.Equal(t, 3, detail.Items[0].Quantity)
	assert.Equal(t, detail.TotalAmount, detail.Items[0].Total())
	assert.Equal(t, sellerID, detail.SellerID)
}

func TestCreateOrderRejections(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 5)

	hidden := &models.Listing{SellerID: sellerID, CategoryID: f.category.ID, Name: "hidden", Price: 1, Quantity: 5}
	require.NoError(t, f.store.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.CreateListing(context.Background(), hidden)
	}))

	tests := []struct {
		name    string
		req     CreateOrderRequest
		kind    ErrorKind
		wantErr error
	}{
		{"zero quantity", CreateOrderRequest{BuyerID: buyerID, ListingID: listing.ID, Quantity: 0}, KindValidation, ErrInvalidQuantity},
		{"negative quantity", CreateOrderRequest{BuyerID: buyerID, ListingID: listing.ID, Quantity: -2}, KindValidation, ErrInvalidQuantity},
		{"missing listing", CreateOrderRequest{BuyerID: buyerID, ListingID: 999, Quantity: 1}, KindNotFound, ErrListingNotFound},
		{"own listing", CreateOrderRequest{BuyerID: sellerID, ListingID: listing.ID, Quantity: 1}, KindValidation, ErrSelfPurchase},
		{"more than stock", CreateOrderRequest{BuyerID: buyerID, ListingID: listing.ID, Quantity: 6}, KindConflict, ErrInsufficientStock},
		{"unavailable listing", CreateOrderRequest{BuyerID: buyerID, ListingID: hidden.ID, Quantity: 1}, KindConflict, ErrListingUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(context.Background(), &tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	orders, err := f.orders.ListBuyerOrders(context.Background(), buyerID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderReportsRemainingStock(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 2)

	_, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{BuyerID: buyerID, ListingID: listing.ID, Quantity: 3})
	require.Error(t, err)
	assert.Equal(t, 2, DetailsOf(err)["remaining"])
	assert.Contains(t, err.Error(), "2 remaining")
}

func TestCreateOrderIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	f.orders = NewOrderService(f.store, f.inventory, f.events, newMemoryIdempotency(), DefaultSettings())
	listing := f.seedListing(t, sellerID, 1000, 5)

	req := CreateOrderRequest{BuyerID: buyerID, ListingID: listing.ID, Quantity: 1, IdempotencyKey: "abc"}
	first, err := f.orders.CreateOrder(context.Background(), &req)
	require.NoError(t, err)
	second, err := f.orders.CreateOrder(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.Replayed)

	orders, err := f.orders.ListBuyerOrders(context.Background(), buyerID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

// claimRecorder remembers the ttl the last key was claimed with
type claimRecorder struct {
	*memoryIdempotency
	claimed time.Duration
}

func (h *claimRecorder) ClaimIdempotencyKey(ctx context.Context, scope, key string, ttl time.Duration) (int64, error) {
	h.claimed = ttl
	return h.memoryIdempotency.ClaimIdempotencyKey(ctx, scope, key, ttl)
}

func TestIdempotencyClaimExpiresSoonerThanResult(t *testing.T) {
	f := newFixture(t)
	settings := DefaultSettings()
	idem := &claimRecorder{memoryIdempotency: newMemoryIdempotency()}
	f.orders = NewOrderService(f.store, f.inventory, f.events, idem, settings)
	listing := f.seedListing(t, sellerID, 1000, 5)

	_, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{BuyerID: buyerID, ListingID: listing.ID, Quantity: 1, IdempotencyKey: "k1"})
	require.NoError(t, err)

	assert.Equal(t, 2*settings.TxTimeout, idem.claimed)
	assert.Less(t, idem.claimed, settings.IdempotencyTTL)
	assert.Equal(t, settings.IdempotencyTTL, idem.ttl(actorScope("order", buyerID), "k1"))
}

func placeOrder(t *testing.T, f *fixture, buyer, listingID int64, quantity int) int64 {
	t.Helper()
	resp, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{BuyerID: buyer, ListingID: listingID, Quantity: quantity})
	require.NoError(t, err)
	return resp.OrderID
}

func transition(f *fixture, orderID, actor int64, status models.OrderStatus) (*models.Order, error) {
	return f.orders.TransitionStatus(context.Background(), &TransitionRequest{OrderID: orderID, ActorID: actor, Status: string(status)})
}

func TestOrderLifecycleCommitsStockOnCompletion(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 5)
	orderID := placeOrder(t, f, buyerID, listing.ID, 3)

	order, err := transition(f, orderID, sellerID, models.OrderStatusShipping)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipping, order.Status)
	assert.Equal(t, 5, f.listing(t, listing.ID).Quantity)

	order, err = transition(f, orderID, buyerID, models.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)

	after := f.listing(t, listing.ID)
	assert.Equal(t, 2, after.Quantity)
	assert.Equal(t, 3, after.Sold)

	assert.Equal(t, []string{
		models.EventTypeOrderCreated,
		models.EventTypeOrderStatusChanged,
		models.EventTypeOrderStatusChanged,
		models.EventTypeOrderCompleted,
	}, f.events.types())
}

func TestCancelLeavesStockUntouched(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 5)

	first := placeOrder(t, f, buyerID, listing.ID, 2)
	_, err := transition(f, first, buyerID, models.OrderStatusCancelled)
	require.NoError(t, err)

	second := placeOrder(t, f, buyerID, listing.ID, 2)
	_, err = transition(f, second, sellerID, models.OrderStatusShipping)
	require.NoError(t, err)
	_, err = transition(f, second, sellerID, models.OrderStatusCancelled)
	require.NoError(t, err)

	after := f.listing(t, listing.ID)
	assert.Equal(t, 5, after.Quantity)
	assert.Equal(t, 0, after.Sold)
}

func TestTransitionAuthorization(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 5)
	orderID := placeOrder(t, f, buyerID, listing.ID, 1)

	_, err := transition(f, orderID, buyerID, models.OrderStatusShipping)
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.ErrorIs(t, err, ErrActorNotAllowed)

	_, err = transition(f, orderID, 999, models.OrderStatusCancelled)
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.ErrorIs(t, err, ErrNotOrderParty)

	_, err = transition(f, orderID, sellerID, models.OrderStatusShipping)
	require.NoError(t, err)

	_, err = transition(f, orderID, sellerID, models.OrderStatusCompleted)
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.Equal(t, 5, f.listing(t, listing.ID).Quantity)
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 5)
	orderID := placeOrder(t, f, buyerID, listing.ID, 1)

	_, err := transition(f, orderID, buyerID, models.OrderStatusCompleted)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = transition(f, orderID, sellerID, models.OrderStatusPending)
	assert.Equal(t, KindConflict, KindOf(err))

	_, err = f.orders.TransitionStatus(context.Background(), &TransitionRequest{OrderID: orderID, ActorID: buyerID, Status: "refunded"})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = transition(f, 999, buyerID, models.OrderStatusCancelled)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = transition(f, orderID, buyerID, models.OrderStatusCancelled)
	require.NoError(t, err)

	for _, target := range []models.OrderStatus{models.OrderStatusPending, models.OrderStatusShipping, models.OrderStatusCompleted, models.OrderStatusCancelled} {
		_, err = transition(f, orderID, sellerID, target)
		assert.Equal(t, KindConflict, KindOf(err), "cancelled -> %s", target)
	}
}

func TestConcurrentCompletionsNeverOversell(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 3)

	var orderIDs []int64
	for b := int64(1); b <= 3; b++ {
		id := placeOrder(t, f, buyerID+b, listing.ID, 2)
		_, err := transition(f, id, sellerID, models.OrderStatusShipping)
		require.NoError(t, err)
		orderIDs = append(orderIDs, id)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(orderIDs))
	for i, id := range orderIDs {
		wg.Add(1)
		go func(i int, id, buyer int64) {
			defer wg.Done()
			_, errs[i] = transition(f, id, buyer, models.OrderStatusCompleted)
		}(i, id, buyerID+int64(i)+1)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	after := f.listing(t, listing.ID)
	assert.Equal(t, 0, after.Quantity)
	assert.Equal(t, 6, after.Sold)
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 5)
	orderID := placeOrder(t, f, buyerID, listing.ID, 2)
	_, err := transition(f, orderID, sellerID, models.OrderStatusShipping)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = transition(f, orderID, buyerID, models.OrderStatusCompleted)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = transition(f, orderID, sellerID, models.OrderStatusCancelled)
	}()
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.Equal(t, KindConflict, KindOf(err))
		}
	}
	assert.Equal(t, 1, failed)

	order, err := f.store.GetOrderByID(context.Background(), orderID)
	require.NoError(t, err)
	after := f.listing(t, listing.ID)
	if order.Status == models.OrderStatusCompleted {
		assert.Equal(t, 3, after.Quantity)
	} else {
		assert.Equal(t, models.OrderStatusCancelled, order.Status)
		assert.Equal(t, 5, after.Quantity)
	}
}

func TestGetOrderHiddenFromStrangers(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 5)
	orderID := placeOrder(t, f, buyerID, listing.ID, 1)

	_, err := f.orders.GetOrder(context.Background(), orderID, sellerID)
	assert.NoError(t, err)

	_, err = f.orders.GetOrder(context.Background(), orderID, 999)
	assert.Equal(t, KindNotFound, KindOf(err))

	sellerOrders, err := f.orders.ListSellerOrders(context.Background(), sellerID)
	require.NoError(t, err)
	require.Len(t, sellerOrders, 1)
	assert.Equal(t, buyerID, sellerOrders[0].BuyerID)
	assert.Equal(t, listing.Name, sellerOrders[0].ListingName)
}

func TestValidateAvailability(t *testing.T) {
	f := newFixture(t)
	listing := f.seedListing(t, sellerID, 1000, 2)

	ok, err := f.inventory.ValidateAvailability(context.Background(), listing.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.inventory.ValidateAvailability(context.Background(), listing.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.inventory.ValidateAvailability(context.Background(), 999, 1)
	assert.Equal(t, KindNotFound, KindOf(err))
}
