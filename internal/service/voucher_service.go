package service

import (
	"context"
	"errors"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// VoucherService manages voucher definitions and their assignment to sellers
type VoucherService struct {
	store  *store.Store
	now    func() time.Time
	logger *zap.Logger
}

// NewVoucherService creates a new voucher service
func NewVoucherService(store *store.Store) *VoucherService {
	return &VoucherService{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: util.GetLogger(),
	}
}

// VoucherInput holds the editable fields of a voucher
type VoucherInput struct {
	Code         string              `json:"code"`
	DiscountType models.DiscountType `json:"discount_type"`
	Value        decimal.Decimal     `json:"value"`
	CategoryID   *int64              `json:"category_id"`
	StartsAt     *time.Time          `json:"starts_at"`
	EndsAt       *time.Time          `json:"ends_at"`
	UsageLimit   int                 `json:"usage_limit"`
	Active       *bool               `json:"active"`
}

// CreateVoucher defines a new voucher
func (s *VoucherService) CreateVoucher(ctx context.Context, adminID int64, in *VoucherInput) (*models.Voucher, error) {
	v := &models.Voucher{
		Code:      normalizeCode(in.Code),
		Active:    true,
		CreatedBy: adminID,
	}
	if v.Code == "" {
		return nil, validationError(ErrInvalidVoucherInput, "code is required")
	}
	if err := s.apply(v, in); err != nil {
		return nil, err
	}

	err := s.store.CreateVoucher(ctx, v)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, conflictError(ErrVoucherCodeTaken, "%q", v.Code)
	}
	if err != nil {
		return nil, internalError("create voucher", err)
	}

	s.logger.Info("Voucher created",
		zap.Int64("voucher_id", v.ID),
		zap.String("code", v.Code),
		zap.Int64("admin_id", adminID))
	return v, nil
}

// UpdateVoucher rewrites a voucher definition. The code cannot change and the
// usage limit cannot drop below the redemptions already made.
func (s *VoucherService) UpdateVoucher(ctx context.Context, id int64, in *VoucherInput) (*models.Voucher, error) {
	v, err := s.getVoucher(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(v, in); err != nil {
		return nil, err
	}
	if v.UsageLimit < v.UsedCount {
		return nil, conflictError(ErrInvalidVoucherInput, "usage_limit %d is below %d redemptions", v.UsageLimit, v.UsedCount)
	}

	err = s.store.UpdateVoucher(ctx, v)
	if errors.Is(err, store.ErrStale) {
		return nil, conflictError(ErrInvalidVoucherInput, "usage_limit is below the redemptions made")
	}
	if err != nil {
		return nil, internalError("update voucher", err)
	}

	s.logger.Info("Voucher updated", zap.Int64("voucher_id", v.ID))
	return v, nil
}

// apply validates in and copies it onto v
func (s *VoucherService) apply(v *models.Voucher, in *VoucherInput) error {
	if !in.DiscountType.Valid() {
		return validationError(ErrInvalidVoucherInput, "discount_type must be percent or fixed")
	}
	if !in.Value.IsPositive() {
		return validationError(ErrInvalidVoucherInput, "value must be positive")
	}
	if in.DiscountType == models.DiscountPercent && in.Value.GreaterThan(hundred) {
		return validationError(ErrInvalidVoucherInput, "percent value must not exceed 100")
	}
	if in.UsageLimit < 1 {
		return validationError(ErrInvalidVoucherInput, "usage_limit must be at least 1")
	}

	startsAt := s.now()
	if in.StartsAt != nil {
		startsAt = in.StartsAt.UTC()
	} else if !v.StartsAt.IsZero() {
		startsAt = v.StartsAt
	}
	var endsAt *time.Time
	if in.EndsAt != nil {
		e := in.EndsAt.UTC()
		if !e.After(startsAt) {
			return validationError(ErrInvalidVoucherInput, "ends_at must be after starts_at")
		}
		endsAt = &e
	}

	v.DiscountType = in.DiscountType
	v.Value = in.Value
	v.CategoryID = in.CategoryID
	v.StartsAt = startsAt
	v.EndsAt = endsAt
	v.UsageLimit = in.UsageLimit
	if in.Active != nil {
		v.Active = *in.Active
	}
	return nil
}

// DeactivateVoucher switches a voucher off. Vouchers are never removed since
// redemptions reference them.
func (s *VoucherService) DeactivateVoucher(ctx context.Context, id int64) error {
	err := s.store.DeactivateVoucher(ctx, id)
	if errors.Is(err, store.ErrStale) {
		return notFoundError(ErrVoucherNotFound, "id %d", id)
	}
	if err != nil {
		return internalError("deactivate voucher", err)
	}
	s.logger.Info("Voucher deactivated", zap.Int64("voucher_id", id))
	return nil
}

// GetVoucher returns a voucher by id
func (s *VoucherService) GetVoucher(ctx context.Context, id int64) (*models.Voucher, error) {
	return s.getVoucher(ctx, id)
}

func (s *VoucherService) getVoucher(ctx context.Context, id int64) (*models.Voucher, error) {
	v, err := s.store.GetVoucher(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(ErrVoucherNotFound, "id %d", id)
	}
	if err != nil {
		return nil, internalError("get voucher", err)
	}
	return v, nil
}

// ListVouchers returns vouchers matching filter
func (s *VoucherService) ListVouchers(ctx context.Context, filter store.VoucherFilter) ([]models.Voucher, error) {
	vouchers, err := s.store.ListVouchers(ctx, filter)
	if err != nil {
		return nil, internalError("list vouchers", err)
	}
	return vouchers, nil
}

// AssignVoucher grants sellerID issuedCount redemptions of a voucher
func (s *VoucherService) AssignVoucher(ctx context.Context, voucherID, sellerID int64, issuedCount int) error {
	if sellerID <= 0 {
		return validationError(ErrInvalidVoucherInput, "seller_id is required")
	}
	if issuedCount < 1 {
		return validationError(ErrInvalidVoucherInput, "issued_count must be at least 1")
	}
	if _, err := s.getVoucher(ctx, voucherID); err != nil {
		return err
	}

	if err := s.store.AssignVoucher(ctx, voucherID, sellerID, issuedCount); err != nil {
		return internalError("assign voucher", err)
	}
	s.logger.Info("Voucher assigned",
		zap.Int64("voucher_id", voucherID),
		zap.Int64("seller_id", sellerID),
		zap.Int("issued_count", issuedCount))
	return nil
}

// ListRedemptions returns the redemption history of a voucher
func (s *VoucherService) ListRedemptions(ctx context.Context, voucherID int64) ([]models.VoucherRedemption, error) {
	if _, err := s.getVoucher(ctx, voucherID); err != nil {
		return nil, err
	}
	redemptions, err := s.store.ListRedemptions(ctx, voucherID)
	if err != nil {
		return nil, internalError("list redemptions", err)
	}
	return redemptions, nil
}

// SellerVouchers returns the active, currently valid vouchers assigned to a
// seller with the uses the seller has left
func (s *VoucherService) SellerVouchers(ctx context.Context, sellerID int64) ([]models.SellerVoucher, error) {
	all, err := s.store.ListSellerVouchers(ctx, sellerID)
	if err != nil {
		return nil, internalError("list seller vouchers", err)
	}

	now := s.now()
	vouchers := make([]models.SellerVoucher, 0, len(all))
	for _, v := range all {
		if !v.Active || !v.InWindow(now) {
			continue
		}
		remaining := v.IssuedCount - v.SellerRedemptions
		if global := v.Remaining(); global < remaining {
			remaining = global
		}
		if remaining < 0 {
			remaining = 0
		}
		v.RemainingForSeller = remaining
		vouchers = append(vouchers, v)
	}
	return vouchers, nil
}
