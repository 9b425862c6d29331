package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ListingService creates listings and charges their posting fee in the same
// transaction
type ListingService struct {
	store          *store.Store
	fees           *FeeService
	eventPublisher EventPublisher
	idempotency    idempotency
	quota          int
	txTimeout      time.Duration
	logger         *zap.Logger
}

// NewListingService creates a new listing service. idem may be nil.
func NewListingService(
	store *store.Store,
	fees *FeeService,
	eventPublisher EventPublisher,
	idem IdempotencyStore,
	settings Settings,
) *ListingService {
	logger := util.GetLogger()
	return &ListingService{
		store:          store,
		fees:           fees,
		eventPublisher: eventPublisher,
		idempotency:    newIdempotency(idem, settings, logger),
		quota:          settings.FreeListingQuota,
		txTimeout:      settings.TxTimeout,
		logger:         logger,
	}
}

// CreateListingRequest represents a request to post a listing
type CreateListingRequest struct {
	SellerID       int64  `json:"-" form:"-"`
	Name           string `json:"name" form:"name"`
	Description    string `json:"description" form:"description"`
	Price          int64  `json:"price" form:"price"`
	Quantity       *int   `json:"quantity" form:"quantity"`
	CategoryID     int64  `json:"category_id" form:"category_id"`
	VoucherCode    string `json:"voucher_code" form:"voucher_code"`
	IdempotencyKey string `json:"-" form:"-"`
}

// CreateListingResponse is the created listing with the fee it was charged
type CreateListingResponse struct {
	Listing  *models.Listing  `json:"listing"`
	Fee      models.FeeResult `json:"fee"`
	Replayed bool             `json:"replayed,omitempty"`
}

// CreateListing inserts a listing and redeems its posting fee atomically. If
// the supplied voucher cannot be redeemed nothing is written.
func (s *ListingService) CreateListing(ctx context.Context, req *CreateListingRequest) (*CreateListingResponse, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.CreateListing",
		attribute.Int64("seller_id", req.SellerID),
		attribute.Int64("category_id", req.CategoryID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = validateCreateListing(req); err != nil {
		return nil, err
	}

	scope := actorScope("listing", req.SellerID)
	replayID, claimed, err := s.idempotency.claim(ctx, scope, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if replayID != 0 {
		return s.replayListing(ctx, replayID, req.IdempotencyKey)
	}

	listing := &models.Listing{
		SellerID:    req.SellerID,
		CategoryID:  req.CategoryID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Quantity:    *req.Quantity,
		IsAvailable: true,
	}
	var red *Redemption

	txCtx, cancel := withTimeout(ctx, s.txTimeout)
	defer cancel()
	err = s.store.WithTx(txCtx, func(tx *store.Tx) error {
		_, err := tx.GetCategory(txCtx, req.CategoryID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(ErrCategoryNotFound, "id %d", req.CategoryID)
		}
		if err != nil {
			return internalError("get category", err)
		}

		if err := tx.CreateListing(txCtx, listing); err != nil {
			return internalError("create listing", err)
		}

		red, err = s.fees.Redeem(txCtx, tx, FeeQuery{
			SellerID:    req.SellerID,
			CategoryID:  req.CategoryID,
			VoucherCode: req.VoucherCode,
		}, listing.ID)
		return err
	})
	if err != nil {
		err = asServiceError("create listing", err)
		if claimed {
			s.idempotency.release(ctx, scope, req.IdempotencyKey)
		}
		s.logger.Info("Listing creation rejected",
			zap.Int64("seller_id", req.SellerID),
			zap.String("voucher_code", req.VoucherCode),
			zap.Error(err))
		return nil, err
	}
	if claimed {
		s.idempotency.complete(ctx, scope, req.IdempotencyKey, listing.ID)
	}

	listing.PostFee = red.Fee.FeeAfter
	listing.FeeSource = red.Fee.Source

	util.ListingsCreatedTotal.WithLabelValues(string(red.Fee.Source)).Inc()
	s.logger.Info("Listing created",
		zap.Int64("listing_id", listing.ID),
		zap.Int64("seller_id", listing.SellerID),
		zap.String("fee_source", string(red.Fee.Source)),
		zap.Int64("fee", red.Fee.FeeAfter))

	s.publishCreated(ctx, listing, red)

	return &CreateListingResponse{Listing: listing, Fee: red.Fee}, nil
}

func validateCreateListing(req *CreateListingRequest) error {
	if req.SellerID <= 0 {
		return authorizationError(ErrActorNotAllowed, "missing seller")
	}
	if strings.TrimSpace(req.Name) == "" {
		return validationError(errors.New("name is required"), "")
	}
	if req.Price < 0 {
		return validationError(errors.New("price must not be negative"), "")
	}
	if req.CategoryID <= 0 {
		return validationError(ErrCategoryRequired, "")
	}
	if req.Quantity == nil {
		one := 1
		req.Quantity = &one
	}
	if *req.Quantity <= 0 {
		return validationError(ErrInvalidQuantity, "")
	}
	return nil
}

func (s *ListingService) publishCreated(ctx context.Context, listing *models.Listing, red *Redemption) {
	created := &models.ListingCreatedEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeListingCreated),
		ListingID:  listing.ID,
		SellerID:   listing.SellerID,
		CategoryID: listing.CategoryID,
		Fee:        red.Fee,
	}
	if err := s.eventPublisher.PublishListingCreated(ctx, created); err != nil {
		s.publishFailed(created.EventType, err)
	}

	if red.Voucher == nil {
		return
	}
	util.VoucherRedemptionsTotal.Inc()
	redeemed := &models.VoucherRedeemedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeVoucherRedeemed),
		VoucherID: red.Voucher.ID,
		Code:      red.Voucher.Code,
		SellerID:  listing.SellerID,
		ListingID: listing.ID,
		Discount:  red.Fee.Discount,
	}
	if err := s.eventPublisher.PublishVoucherRedeemed(ctx, redeemed); err != nil {
		s.publishFailed(redeemed.EventType, err)
	}
}

func (s *ListingService) publishFailed(eventType string, err error) {
	util.EventsPublishFailedTotal.WithLabelValues(eventType).Inc()
	s.logger.Error("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
}

// replayListing rebuilds the response of an earlier request from the stored listing
func (s *ListingService) replayListing(ctx context.Context, listingID int64, key string) (*CreateListingResponse, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, internalError("get replayed listing", err)
	}
	s.logger.Info("Duplicate listing request detected",
		zap.String("idempotency_key", key),
		zap.Int64("listing_id", listing.ID))
	return &CreateListingResponse{
		Listing:  listing,
		Fee:      models.FeeResult{Source: listing.FeeSource, FeeAfter: listing.PostFee},
		Replayed: true,
	}, nil
}

// GetListing returns a listing by id
func (s *ListingService) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	listing, err := s.store.GetListing(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(ErrListingNotFound, "id %d", id)
	}
	if err != nil {
		return nil, internalError("get listing", err)
	}
	return listing, nil
}

// ListingCount is how many listings a seller posted and how many stay free
type ListingCount struct {
	Count         int `json:"count"`
	FreeRemaining int `json:"free_remaining"`
}

// CountForSeller returns the seller's listing count against the free quota
func (s *ListingService) CountForSeller(ctx context.Context, sellerID int64) (*ListingCount, error) {
	n, err := s.store.CountListingsBySeller(ctx, sellerID)
	if err != nil {
		return nil, internalError("count listings", err)
	}
	free := s.quota - n
	if free < 0 {
		free = 0
	}
	return &ListingCount{Count: n, FreeRemaining: free}, nil
}
