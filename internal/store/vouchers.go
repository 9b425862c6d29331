package store

import (
	"context"
	"strings"
	"time"

	"marketplace-service/internal/models"
)

const voucherColumns = `id, code, discount_type, value, category_id, starts_at, ends_at,
	usage_limit, used_count, active, created_by, created_at, updated_at`

// CreateVoucher inserts a voucher definition
func (s *Store) CreateVoucher(ctx context.Context, v *models.Voucher) error {
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	return s.insert(ctx, &v.ID,
		`INSERT INTO vouchers (code, discount_type, value, category_id, starts_at, ends_at,
			usage_limit, used_count, active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
		RETURNING id`,
		v.Code, v.DiscountType, v.Value, v.CategoryID, v.StartsAt, v.EndsAt,
		v.UsageLimit, v.Active, v.CreatedBy, v.CreatedAt, v.UpdatedAt)
}

// UpdateVoucher rewrites the editable fields of a voucher. The usage limit
// cannot drop below the redemptions already made.
func (s *Store) UpdateVoucher(ctx context.Context, v *models.Voucher) error {
	v.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx,
		`UPDATE vouchers
		SET discount_type = ?, value = ?, category_id = ?, starts_at = ?, ends_at = ?,
			usage_limit = ?, active = ?, updated_at = ?
		WHERE id = ? AND used_count <= ?`,
		v.DiscountType, v.Value, v.CategoryID, v.StartsAt, v.EndsAt,
		v.UsageLimit, v.Active, v.UpdatedAt, v.ID, v.UsageLimit)
}

// DeactivateVoucher switches a voucher off; redemptions keep referencing it
func (s *Store) DeactivateVoucher(ctx context.Context, id int64) error {
	return s.execOne(ctx,
		"UPDATE vouchers SET active = ?, updated_at = ? WHERE id = ?",
		false, time.Now().UTC(), id)
}

// GetVoucher retrieves a voucher by ID
func (c conn) GetVoucher(ctx context.Context, id int64) (*models.Voucher, error) {
	var v models.Voucher
	if err := c.get(ctx, &v, "SELECT "+voucherColumns+" FROM vouchers WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVoucherByCode retrieves a voucher by its code
func (c conn) GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var v models.Voucher
	if err := c.get(ctx, &v, "SELECT "+voucherColumns+" FROM vouchers WHERE code = ?", code); err != nil {
		return nil, err
	}
	return &v, nil
}

// LockVoucherByCode reads a voucher and holds its row lock until the transaction ends
func (t *Tx) LockVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var v models.Voucher
	if err := t.get(ctx, &v, "SELECT "+voucherColumns+" FROM vouchers WHERE code = ?"+t.forUpdate(), code); err != nil {
		return nil, err
	}
	return &v, nil
}

// VoucherFilter narrows ListVouchers
type VoucherFilter struct {
	Query  string
	Active *bool
	Type   models.DiscountType
}

// ListVouchers returns vouchers matching the filter, newest first
func (s *Store) ListVouchers(ctx context.Context, f VoucherFilter) ([]models.Voucher, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		conds = append(conds, "LOWER(code) LIKE ?")
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	if f.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, *f.Active)
	}
	if f.Type != "" {
		conds = append(conds, "discount_type = ?")
		args = append(args, f.Type)
	}

	query := "SELECT " + voucherColumns + " FROM vouchers"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	vouchers := []models.Voucher{}
	err := s.selectAll(ctx, &vouchers, query, args...)
	return vouchers, err
}

// AssignVoucher grants a seller issuedCount redemptions of a voucher,
// replacing any previous grant
func (s *Store) AssignVoucher(ctx context.Context, voucherID, sellerID int64, issuedCount int) error {
	_, err := s.exec(ctx,
		`INSERT INTO voucher_assignments (voucher_id, seller_id, issued_count, assigned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (voucher_id, seller_id) DO UPDATE SET issued_count = excluded.issued_count`,
		voucherID, sellerID, issuedCount, time.Now().UTC())
	return err
}

// GetAssignment returns the grant of a voucher to a seller
func (c conn) GetAssignment(ctx context.Context, voucherID, sellerID int64) (*models.VoucherAssignment, error) {
	var a models.VoucherAssignment
	err := c.get(ctx, &a,
		"SELECT voucher_id, seller_id, issued_count, assigned_at FROM voucher_assignments WHERE voucher_id = ? AND seller_id = ?",
		voucherID, sellerID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountSellerRedemptions counts how often a seller redeemed a voucher
func (c conn) CountSellerRedemptions(ctx context.Context, voucherID, sellerID int64) (int, error) {
	var n int
	err := c.get(ctx, &n,
		"SELECT COUNT(*) FROM voucher_redemptions WHERE voucher_id = ? AND seller_id = ?",
		voucherID, sellerID)
	return n, err
}

// IncrementVoucherUsage consumes one use of a voucher. It fails with ErrStale
// when the usage limit is already reached.
func (t *Tx) IncrementVoucherUsage(ctx context.Context, voucherID int64) error {
	return t.execOne(ctx,
		"UPDATE vouchers SET used_count = used_count + 1, updated_at = ? WHERE id = ? AND used_count < usage_limit",
		time.Now().UTC(), voucherID)
}

// CreateRedemption records a voucher applied to a listing. A second redemption
// of the same voucher on the same listing fails with ErrDuplicate.
func (t *Tx) CreateRedemption(ctx context.Context, r *models.VoucherRedemption) error {
	r.RedeemedAt = time.Now().UTC()
	return t.insert(ctx, &r.ID,
		`INSERT INTO voucher_redemptions (voucher_id, seller_id, listing_id, discount, redeemed_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		r.VoucherID, r.SellerID, r.ListingID, r.Discount, r.RedeemedAt)
}

// ListRedemptions returns the redemptions of a voucher, newest first
func (c conn) ListRedemptions(ctx context.Context, voucherID int64) ([]models.VoucherRedemption, error) {
	redemptions := []models.VoucherRedemption{}
	err := c.selectAll(ctx, &redemptions,
		`SELECT id, voucher_id, seller_id, listing_id, discount, redeemed_at
		FROM voucher_redemptions
		WHERE voucher_id = ?
		ORDER BY redeemed_at DESC, id DESC`, voucherID)
	return redemptions, err
}

// CountRedemptions counts every redemption of a voucher
func (c conn) CountRedemptions(ctx context.Context, voucherID int64) (int, error) {
	var n int
	err := c.get(ctx, &n, "SELECT COUNT(*) FROM voucher_redemptions WHERE voucher_id = ?", voucherID)
	return n, err
}

// ListSellerVouchers returns the vouchers assigned to a seller with the
// seller's own redemption count
func (c conn) ListSellerVouchers(ctx context.Context, sellerID int64) ([]models.SellerVoucher, error) {
	vouchers := []models.SellerVoucher{}
	err := c.selectAll(ctx, &vouchers,
		`SELECT v.id, v.code, v.discount_type, v.value, v.category_id, v.starts_at, v.ends_at,
			v.usage_limit, v.used_count, v.active, v.created_by, v.created_at, v.updated_at,
			a.issued_count,
			(SELECT COUNT(*) FROM voucher_redemptions r
				WHERE r.voucher_id = v.id AND r.seller_id = a.seller_id) AS seller_redemptions
		FROM voucher_assignments a
		JOIN vouchers v ON v.id = a.voucher_id
		WHERE a.seller_id = ?
		ORDER BY v.created_at DESC, v.id DESC`, sellerID)
	return vouchers, err
}
