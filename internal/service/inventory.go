package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryLedger owns listing stock. Stock is only checked when an order is
// placed and only taken away when an order completes.
type InventoryLedger struct {
	store  *store.Store
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(store *store.Store) *InventoryLedger {
	return &InventoryLedger{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ValidateAvailability reports whether a listing is available with at least
// quantity units in stock. It never writes.
func (l *InventoryLedger) ValidateAvailability(ctx context.Context, listingID int64, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, validationError(ErrInvalidQuantity, "")
	}
	listing, err := l.store.GetListing(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) {
		return false, notFoundError(ErrListingNotFound, "id %d", listingID)
	}
	if err != nil {
		return false, internalError("get listing", err)
	}
	return checkStock(listing, quantity) == nil, nil
}

// checkStock returns a conflict error when listing cannot serve quantity units
func checkStock(listing *models.Listing, quantity int) error {
	if !listing.IsAvailable {
		return conflictError(ErrListingUnavailable, "")
	}
	if listing.Quantity < quantity {
		return conflictError(ErrInsufficientStock, "%d remaining", listing.Quantity).
			with("remaining", listing.Quantity)
	}
	return nil
}

// CommitFulfillment moves the ordered units of every item of an order from
// stock to sold. It must run inside the transaction that completes the order.
// Each listing row is locked before it is changed, in listing id order.
func (l *InventoryLedger) CommitFulfillment(ctx context.Context, tx *store.Tx, orderID int64) ([]models.StockCommit, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.CommitFulfillment", attribute.Int64("order_id", orderID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	items, err := tx.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ListingID < items[j].ListingID })

	commits := make([]models.StockCommit, 0, len(items))
	for _, item := range items {
		var listing *models.Listing
		listing, err = tx.LockListing(ctx, item.ListingID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock listing %d: %w", item.ListingID, err)
		}

		taken := item.Quantity
		if listing.Quantity < taken {
			taken = listing.Quantity
		}

		if err = tx.CommitStock(ctx, item.ListingID, item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to commit stock for listing %d: %w", item.ListingID, err)
		}

		commit := models.StockCommit{
			ListingID: item.ListingID,
			Ordered:   item.Quantity,
			Taken:     taken,
			Remaining: listing.Quantity - taken,
		}
		if commit.Shortfall() > 0 {
			l.logger.Warn("Fulfillment exceeds stock, clamping at zero",
				zap.Int64("order_id", orderID),
				zap.Int64("listing_id", item.ListingID),
				zap.Int("ordered", item.Quantity),
				zap.Int("in_stock", listing.Quantity))
		}
		commits = append(commits, commit)
	}

	return commits, nil
}

// recordCommits updates the stock metrics once the transaction committed
func recordCommits(commits []models.StockCommit) {
	for _, c := range commits {
		util.StockCommittedUnits.Add(float64(c.Taken))
		util.StockShortfallUnits.Add(float64(c.Shortfall()))
	}
}
