package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"

	"go.uber.org/zap"
)

// EventPublisher publishes domain events after their transaction committed
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishListingCreated(ctx context.Context, event *models.ListingCreatedEvent) error
	PublishVoucherRedeemed(ctx context.Context, event *models.VoucherRedeemedEvent) error
}

// IdempotencyStore remembers which resource a client request key produced.
// Claim holds the key for the given ttl; Complete stores the result for its own ttl.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, scope, key string, ttl time.Duration) (int64, error)
	CompleteIdempotencyKey(ctx context.Context, scope, key string, id int64, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, scope, key string) error
}

// FeeCache caches category posting fees for previews
type FeeCache interface {
	GetCategoryFee(ctx context.Context, categoryID int64) (int64, bool, error)
	SetCategoryFee(ctx context.Context, categoryID, fee int64, ttl time.Duration) error
}

// Settings are the business knobs shared by the services
type Settings struct {
	FreeListingQuota  int
	DefaultListingFee int64
	TxTimeout         time.Duration
	IdempotencyTTL    time.Duration
	FeeCacheTTL       time.Duration
}

// DefaultSettings returns the values used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		FreeListingQuota:  5,
		DefaultListingFee: 10000,
		TxTimeout:         5 * time.Second,
		IdempotencyTTL:    24 * time.Hour,
		FeeCacheTTL:       5 * time.Minute,
	}
}

// idempotency wraps an optional IdempotencyStore. A nil store or an
// unreachable one disables replay protection rather than failing requests.
// A claimed key expires after pendingTTL unless the request completes, so a
// crashed request does not block retries for the whole ttl.
type idempotency struct {
	store      IdempotencyStore
	ttl        time.Duration
	pendingTTL time.Duration
	logger     *zap.Logger
}

func newIdempotency(store IdempotencyStore, settings Settings, logger *zap.Logger) idempotency {
	pending := 2 * settings.TxTimeout
	if pending <= 0 {
		pending = 30 * time.Second
	}
	if settings.IdempotencyTTL > 0 && pending > settings.IdempotencyTTL {
		pending = settings.IdempotencyTTL
	}
	return idempotency{
		store:      store,
		ttl:        settings.IdempotencyTTL,
		pendingTTL: pending,
		logger:     logger,
	}
}

// claim returns the id recorded for a finished request, or 0 together with
// claimed=true when the caller now owns the key
func (i idempotency) claim(ctx context.Context, scope, key string) (id int64, claimed bool, err error) {
	if i.store == nil || key == "" {
		return 0, false, nil
	}
	id, err = i.store.ClaimIdempotencyKey(ctx, scope, key, i.pendingTTL)
	switch {
	case errors.Is(err, redisclient.ErrKeyInFlight):
		return 0, false, conflictError(ErrRequestInFlight, "")
	case err != nil:
		i.logger.Warn("Idempotency store unavailable, processing without replay protection",
			zap.String("scope", scope),
			zap.Error(err))
		return 0, false, nil
	case id != 0:
		return id, false, nil
	}
	return 0, true, nil
}

func (i idempotency) complete(ctx context.Context, scope, key string, id int64) {
	if err := i.store.CompleteIdempotencyKey(ctx, scope, key, id, i.ttl); err != nil {
		i.logger.Warn("Failed to record idempotency key",
			zap.String("scope", scope),
			zap.Int64("id", id),
			zap.Error(err))
	}
}

func (i idempotency) release(ctx context.Context, scope, key string) {
	if err := i.store.ReleaseIdempotencyKey(ctx, scope, key); err != nil {
		i.logger.Warn("Failed to release idempotency key", zap.String("scope", scope), zap.Error(err))
	}
}

func actorScope(kind string, actorID int64) string {
	return fmt.Sprintf("%s:%d", kind, actorID)
}

// withTimeout bounds a unit of work by the configured transaction timeout
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
