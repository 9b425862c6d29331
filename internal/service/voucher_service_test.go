package service

import (
	"context"
	"testing"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVoucherValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name string
		in   VoucherInput
	}{
		{"missing code", VoucherInput{DiscountType: models.DiscountFixed, Value: decimal.NewFromInt(10), UsageLimit: 1}},
		{"unknown type", VoucherInput{Code: "A", DiscountType: "bogus", Value: decimal.NewFromInt(10), UsageLimit: 1}},
		{"zero value", VoucherInput{Code: "A", DiscountType: models.DiscountFixed, UsageLimit: 1}},
		{"percent above 100", VoucherInput{Code: "A", DiscountType: models.DiscountPercent, Value: decimal.NewFromInt(101), UsageLimit: 1}},
		{"zero usage limit", VoucherInput{Code: "A", DiscountType: models.DiscountFixed, Value: decimal.NewFromInt(10)}},
		{"ends before start", VoucherInput{Code: "A", DiscountType: models.DiscountFixed, Value: decimal.NewFromInt(10), UsageLimit: 1, StartsAt: &now, EndsAt: &earlier}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.vouchers.CreateVoucher(ctx, 1, &tt.in)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestCreateVoucherRejectsDuplicateCode(t *testing.T) {
	f := newFixture(t)
	f.seedVoucher(t, "WELCOME", models.DiscountFixed, "500", 1)

	_, err := f.vouchers.CreateVoucher(context.Background(), 1, &VoucherInput{
		Code: "welcome", DiscountType: models.DiscountFixed, Value: decimal.NewFromInt(500), UsageLimit: 1,
	})
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, ErrVoucherCodeTaken)
}

func TestUpdateVoucherKeepsUsageLimitAboveRedemptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedListings(t, sellerID, 5)
	v := f.seedVoucher(t, "TWICE", models.DiscountFixed, "500", 3, sellerID)

	for i := 0; i < 2; i++ {
		_, err := f.listings.CreateListing(ctx, newListingRequest(f, sellerID, "TWICE"))
		require.NoError(t, err)
	}

	in := &VoucherInput{DiscountType: models.DiscountFixed, Value: decimal.NewFromInt(700), UsageLimit: 1}
	_, err := f.vouchers.UpdateVoucher(ctx, v.ID, in)
	assert.Equal(t, KindConflict, KindOf(err))

	in.UsageLimit = 2
	updated, err := f.vouchers.UpdateVoucher(ctx, v.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.UsageLimit)
	assert.True(t, decimal.NewFromInt(700).Equal(f.voucher(t, v.ID).Value))

	_, err = f.vouchers.UpdateVoucher(ctx, 999, in)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDeactivateVoucher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.seedVoucher(t, "GONE", models.DiscountFixed, "500", 3, sellerID)

	require.NoError(t, f.vouchers.DeactivateVoucher(ctx, v.ID))
	assert.False(t, f.voucher(t, v.ID).Active)

	active := true
	listed, err := f.vouchers.ListVouchers(ctx, store.VoucherFilter{Active: &active})
	require.NoError(t, err)
	assert.Empty(t, listed)

	listed, err = f.vouchers.ListVouchers(ctx, store.VoucherFilter{Query: "go"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	assert.Equal(t, KindNotFound, KindOf(f.vouchers.DeactivateVoucher(ctx, 999)))
}

func TestAssignVoucher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.seedVoucher(t, "GIFT", models.DiscountFixed, "500", 3)

	assert.Equal(t, KindNotFound, KindOf(f.vouchers.AssignVoucher(ctx, 999, sellerID, 1)))
	assert.Equal(t, KindValidation, KindOf(f.vouchers.AssignVoucher(ctx, v.ID, sellerID, 0)))
	assert.Equal(t, KindValidation, KindOf(f.vouchers.AssignVoucher(ctx, v.ID, 0, 1)))

	require.NoError(t, f.vouchers.AssignVoucher(ctx, v.ID, sellerID, 1))
	require.NoError(t, f.vouchers.AssignVoucher(ctx, v.ID, sellerID, 2))

	a, err := f.store.GetAssignment(ctx, v.ID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.IssuedCount)
}

func TestSellerVouchersRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedListings(t, sellerID, 5)

	v := f.seedVoucher(t, "MINE", models.DiscountPercent, "10", 100)
	require.NoError(t, f.vouchers.AssignVoucher(ctx, v.ID, sellerID, 3))
	_, err := f.listings.CreateListing(ctx, newListingRequest(f, sellerID, "MINE"))
	require.NoError(t, err)

	off := f.seedVoucher(t, "HIDDEN", models.DiscountPercent, "10", 100, sellerID)
	require.NoError(t, f.vouchers.DeactivateVoucher(ctx, off.ID))

	vouchers, err := f.vouchers.SellerVouchers(ctx, sellerID)
	require.NoError(t, err)
	require.Len(t, vouchers, 1)
	assert.Equal(t, "MINE", vouchers[0].Code)
	assert.Equal(t, 3, vouchers[0].IssuedCount)
	assert.Equal(t, 1, vouchers[0].SellerRedemptions)
	assert.Equal(t, 2, vouchers[0].RemainingForSeller)

	none, err := f.vouchers.SellerVouchers(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)
}
