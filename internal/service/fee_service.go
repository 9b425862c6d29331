package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Reasons attached to a fee result when a voucher was not applied
const (
	ReasonFreeQuota          = "free_quota_applies"
	ReasonVoucherNotFound    = "voucher_not_found"
	ReasonVoucherInactive    = "voucher_inactive"
	ReasonVoucherNotStarted  = "voucher_not_started"
	ReasonVoucherExpired     = "voucher_expired"
	ReasonCategoryMismatch   = "voucher_category_mismatch"
	ReasonNotAssigned        = "voucher_not_assigned"
	ReasonSellerLimitReached = "voucher_seller_limit_reached"
	ReasonUsageLimitReached  = "voucher_usage_limit_reached"
	ReasonNoFee              = "no_fee_to_discount"
)

var hundred = decimal.NewFromInt(100)

// FeeService computes listing posting fees: the free quota first, then the
// category fee with an optional voucher discount
type FeeService struct {
	store      *store.Store
	cache      FeeCache
	quota      int
	defaultFee int64
	cacheTTL   time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewFeeService creates a new fee service. cache may be nil.
func NewFeeService(store *store.Store, cache FeeCache, settings Settings) *FeeService {
	return &FeeService{
		store:      store,
		cache:      cache,
		quota:      settings.FreeListingQuota,
		defaultFee: settings.DefaultListingFee,
		cacheTTL:   settings.FeeCacheTTL,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     util.GetLogger(),
	}
}

// FeeQuery identifies the listing a fee is computed for
type FeeQuery struct {
	SellerID    int64  `json:"-"`
	CategoryID  int64  `json:"category_id" form:"category_id"`
	VoucherCode string `json:"voucher_code" form:"voucher_code"`
}

// voucherReader is satisfied by both *store.Store and *store.Tx
type voucherReader interface {
	GetAssignment(ctx context.Context, voucherID, sellerID int64) (*models.VoucherAssignment, error)
	CountSellerRedemptions(ctx context.Context, voucherID, sellerID int64) (int, error)
}

// Preview computes the fee the seller's next listing would be charged without
// consuming anything. It makes the same decisions as Redeem in the same order;
// an unusable voucher is reported in Reason, not as an error.
func (s *FeeService) Preview(ctx context.Context, q FeeQuery) (*models.FeeResult, error) {
	ctx, span := util.StartSpan(ctx, "FeeService.Preview",
		attribute.Int64("seller_id", q.SellerID),
		attribute.Int64("category_id", q.CategoryID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if q.CategoryID <= 0 {
		err = validationError(ErrCategoryRequired, "")
		return nil, err
	}

	base, err := s.categoryFee(ctx, q.CategoryID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountListingsBySeller(ctx, q.SellerID)
	if err != nil {
		err = internalError("count listings", err)
		return nil, err
	}
	code := normalizeCode(q.VoucherCode)
	if res := s.freeQuota(count, code); res != nil {
		util.FeeQuotesTotal.WithLabelValues(string(res.Source)).Inc()
		return res, nil
	}

	res := &models.FeeResult{Source: models.FeeSourceNone, FeeBefore: base, FeeAfter: base}

	switch {
	case code == "":
	case base == 0:
		res.Reason = ReasonNoFee
	default:
		var v *models.Voucher
		v, err = s.store.GetVoucherByCode(ctx, code)
		switch {
		case errors.Is(err, store.ErrNotFound):
			err = nil
			res.Reason = ReasonVoucherNotFound
		case err != nil:
			err = internalError("get voucher", err)
			return nil, err
		default:
			var reason string
			reason, err = s.checkVoucher(ctx, s.store, v, q.SellerID, q.CategoryID)
			if err != nil {
				return nil, err
			}
			if reason != "" {
				res.Reason = reason
			} else {
				applyVoucher(res, v)
			}
		}
	}

	util.FeeQuotesTotal.WithLabelValues(string(res.Source)).Inc()
	return res, nil
}

// Redemption is the outcome of charging the fee for a new listing
type Redemption struct {
	Fee          models.FeeResult
	Voucher      *models.Voucher
	RedemptionID int64
}

// Redeem charges the posting fee of a listing that was just inserted in tx.
// Listings inside the free quota are free and leave the voucher untouched.
// Otherwise the voucher, if any, must be usable and one use of it is consumed.
func (s *FeeService) Redeem(ctx context.Context, tx *store.Tx, q FeeQuery, listingID int64) (*Redemption, error) {
	ctx, span := util.StartSpan(ctx, "FeeService.Redeem",
		attribute.Int64("seller_id", q.SellerID),
		attribute.Int64("listing_id", listingID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	cat, err := tx.GetCategory(ctx, q.CategoryID)
	if errors.Is(err, store.ErrNotFound) {
		err = notFoundError(ErrCategoryNotFound, "id %d", q.CategoryID)
		return nil, err
	}
	if err != nil {
		err = internalError("get category", err)
		return nil, err
	}
	base := s.baseFee(cat)

	if err = tx.LockSeller(ctx, q.SellerID); err != nil {
		err = internalError("lock seller", err)
		return nil, err
	}
	count, err := tx.CountOtherListings(ctx, q.SellerID, listingID)
	if err != nil {
		err = internalError("count listings", err)
		return nil, err
	}

	code := normalizeCode(q.VoucherCode)
	if res := s.freeQuota(count, code); res != nil {
		// the new listing itself takes one free slot
		res.FreeRemaining--
		if err = tx.SetListingFee(ctx, listingID, 0, res.Source); err != nil {
			err = internalError("set listing fee", err)
			return nil, err
		}
		return &Redemption{Fee: *res}, nil
	}

	red := &Redemption{Fee: models.FeeResult{Source: models.FeeSourceNone, FeeBefore: base, FeeAfter: base}}

	switch {
	case code == "":
	case base == 0:
		red.Fee.Reason = ReasonNoFee
	default:
		if err = s.consumeVoucher(ctx, tx, q, code, listingID, red); err != nil {
			return nil, err
		}
	}

	if err = tx.SetListingFee(ctx, listingID, red.Fee.FeeAfter, red.Fee.Source); err != nil {
		err = internalError("set listing fee", err)
		return nil, err
	}
	return red, nil
}

func (s *FeeService) consumeVoucher(ctx context.Context, tx *store.Tx, q FeeQuery, code string, listingID int64, red *Redemption) error {
	v, err := tx.LockVoucherByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		util.VoucherRedemptionsRejected.WithLabelValues(ReasonVoucherNotFound).Inc()
		return notFoundError(ErrVoucherNotFound, "code %q", code)
	}
	if err != nil {
		return internalError("lock voucher", err)
	}

	reason, err := s.checkVoucher(ctx, tx, v, q.SellerID, q.CategoryID)
	if err != nil {
		return err
	}
	if reason != "" {
		util.VoucherRedemptionsRejected.WithLabelValues(reason).Inc()
		sentinel := ErrVoucherIneligible
		if reason == ReasonUsageLimitReached || reason == ReasonSellerLimitReached {
			sentinel = ErrVoucherExhausted
		}
		return conflictError(sentinel, "%s", reason).with("reason", reason)
	}

	applyVoucher(&red.Fee, v)

	err = tx.IncrementVoucherUsage(ctx, v.ID)
	if errors.Is(err, store.ErrStale) {
		util.VoucherRedemptionsRejected.WithLabelValues(ReasonUsageLimitReached).Inc()
		return conflictError(ErrVoucherExhausted, "%s", ReasonUsageLimitReached).
			with("reason", ReasonUsageLimitReached)
	}
	if err != nil {
		return internalError("increment voucher usage", err)
	}

	r := &models.VoucherRedemption{
		VoucherID: v.ID,
		SellerID:  q.SellerID,
		ListingID: listingID,
		Discount:  red.Fee.Discount,
	}
	err = tx.CreateRedemption(ctx, r)
	if errors.Is(err, store.ErrDuplicate) {
		return conflictError(ErrVoucherRedeemed, "")
	}
	if err != nil {
		return internalError("create redemption", err)
	}

	v.UsedCount++
	red.Voucher = v
	red.RedemptionID = r.ID
	return nil
}

// normalizeCode puts a voucher code in the form it is stored in
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// freeQuota returns the free result when the seller has not used up the quota
func (s *FeeService) freeQuota(count int, code string) *models.FeeResult {
	if count >= s.quota {
		return nil
	}
	res := &models.FeeResult{
		Source:        models.FeeSourceFreeQuota,
		FreeRemaining: s.quota - count,
	}
	if code != "" {
		res.Reason = ReasonFreeQuota
	}
	return res
}

func (s *FeeService) baseFee(cat *models.Category) int64 {
	if cat.PostFee != nil {
		return *cat.PostFee
	}
	return s.defaultFee
}

// categoryFee reads the base fee of a category through the cache
func (s *FeeService) categoryFee(ctx context.Context, categoryID int64) (int64, error) {
	if s.cache != nil {
		fee, ok, err := s.cache.GetCategoryFee(ctx, categoryID)
		if err != nil {
			s.logger.Warn("Fee cache read failed", zap.Int64("category_id", categoryID), zap.Error(err))
		} else if ok {
			return fee, nil
		}
	}

	cat, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, notFoundError(ErrCategoryNotFound, "id %d", categoryID)
	}
	if err != nil {
		return 0, internalError("get category", err)
	}
	fee := s.baseFee(cat)

	if s.cache != nil {
		if err := s.cache.SetCategoryFee(ctx, categoryID, fee, s.cacheTTL); err != nil {
			s.logger.Warn("Fee cache write failed", zap.Int64("category_id", categoryID), zap.Error(err))
		}
	}
	return fee, nil
}

// checkVoucher returns why v cannot be applied to a listing of categoryID by
// sellerID, or "" when it can
func (s *FeeService) checkVoucher(ctx context.Context, r voucherReader, v *models.Voucher, sellerID, categoryID int64) (string, error) {
	now := s.now()
	switch {
	case !v.Active:
		return ReasonVoucherInactive, nil
	case now.Before(v.StartsAt):
		return ReasonVoucherNotStarted, nil
	case !v.InWindow(now):
		return ReasonVoucherExpired, nil
	case v.CategoryID != nil && *v.CategoryID != categoryID:
		return ReasonCategoryMismatch, nil
	}

	a, err := r.GetAssignment(ctx, v.ID, sellerID)
	if errors.Is(err, store.ErrNotFound) {
		return ReasonNotAssigned, nil
	}
	if err != nil {
		return "", internalError("get voucher assignment", err)
	}
	used, err := r.CountSellerRedemptions(ctx, v.ID, sellerID)
	if err != nil {
		return "", internalError("count seller redemptions", err)
	}
	if used >= a.IssuedCount {
		return ReasonSellerLimitReached, nil
	}
	if v.Remaining() == 0 {
		return ReasonUsageLimitReached, nil
	}
	return "", nil
}

// applyVoucher discounts res.FeeBefore by v and marks the result as voucher sourced
func applyVoucher(res *models.FeeResult, v *models.Voucher) {
	res.Discount = Discount(res.FeeBefore, v.DiscountType, v.Value)
	res.FeeAfter = res.FeeBefore - res.Discount
	res.Source = models.FeeSourceVoucher
	res.AppliedVoucher = &models.AppliedVoucher{ID: v.ID, Code: v.Code}
	res.Reason = ""
}

// Discount returns the amount a voucher takes off fee. Percentages are rounded
// half away from zero. The result never exceeds fee.
func Discount(fee int64, t models.DiscountType, value decimal.Decimal) int64 {
	var d decimal.Decimal
	switch t {
	case models.DiscountPercent:
		d = decimal.NewFromInt(fee).Mul(value).Div(hundred)
	case models.DiscountFixed:
		d = value
	default:
		return 0
	}

	discount := d.Round(0).IntPart()
	if discount < 0 {
		return 0
	}
	if discount > fee {
		return fee
	}
	return discount
}
