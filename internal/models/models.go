package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups listings and carries the posting fee charged once the free quota is used up.
type Category struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	PostFee   *int64    `db:"post_fee" json:"post_fee,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Listing is an item a seller posted for sale
type Listing struct {
	ID          int64     `db:"id" json:"id"`
	SellerID    int64     `db:"seller_id" json:"seller_id"`
	CategoryID  int64     `db:"category_id" json:"category_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Price       int64     `db:"price" json:"price"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Sold        int       `db:"sold" json:"sold"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	PostFee     int64     `db:"post_fee" json:"post_fee"`
	FeeSource   FeeSource `db:"fee_source" json:"fee_source"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Order represents a buyer's purchase request
type Order struct {
	ID          int64       `db:"id" json:"id"`
	BuyerID     int64       `db:"buyer_id" json:"buyer_id"`
	TotalAmount int64       `db:"total_amount" json:"total_amount"`
	Status      OrderStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// OrderItem snapshots the listing price at order time
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ListingID int64 `db:"listing_id" json:"listing_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	Price     int64 `db:"price" json:"price"`
}

// Total returns the line total of the item
func (i OrderItem) Total() int64 {
	return i.Price * int64(i.Quantity)
}

// OrderSummary is a row of the buyer/seller order lists
type OrderSummary struct {
	ID          int64       `db:"id" json:"id"`
	Status      OrderStatus `db:"status" json:"status"`
	TotalAmount int64       `db:"total_amount" json:"total_amount"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	ListingID   int64       `db:"listing_id" json:"listing_id"`
	ListingName string      `db:"listing_name" json:"listing_name"`
	Quantity    int         `db:"quantity" json:"quantity"`
	BuyerID     int64       `db:"buyer_id" json:"buyer_id"`
	SellerID    int64       `db:"seller_id" json:"seller_id"`
}

// DiscountType is how a voucher reduces the posting fee
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Valid reports whether t is a known discount type
func (t DiscountType) Valid() bool {
	return t == DiscountPercent || t == DiscountFixed
}

// Voucher is a posting-fee discount definition
type Voucher struct {
	ID           int64           `db:"id" json:"id"`
	Code         string          `db:"code" json:"code"`
	DiscountType DiscountType    `db:"discount_type" json:"discount_type"`
	Value        decimal.Decimal `db:"value" json:"value"`
	CategoryID   *int64          `db:"category_id" json:"category_id,omitempty"`
	StartsAt     time.Time       `db:"starts_at" json:"starts_at"`
	EndsAt       *time.Time      `db:"ends_at" json:"ends_at,omitempty"`
	UsageLimit   int             `db:"usage_limit" json:"usage_limit"`
	UsedCount    int             `db:"used_count" json:"used_count"`
	Active       bool            `db:"active" json:"active"`
	CreatedBy    int64           `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// InWindow reports whether the voucher validity window contains t
func (v *Voucher) InWindow(t time.Time) bool {
	if t.Before(v.StartsAt) {
		return false
	}
	return v.EndsAt == nil || !t.After(*v.EndsAt)
}

// Remaining returns the global usage capacity left
func (v *Voucher) Remaining() int {
	if v.UsedCount >= v.UsageLimit {
		return 0
	}
	return v.UsageLimit - v.UsedCount
}

// VoucherAssignment grants a seller the right to redeem a voucher IssuedCount times
type VoucherAssignment struct {
	VoucherID   int64     `db:"voucher_id" json:"voucher_id"`
	SellerID    int64     `db:"seller_id" json:"seller_id"`
	IssuedCount int       `db:"issued_count" json:"issued_count"`
	AssignedAt  time.Time `db:"assigned_at" json:"assigned_at"`
}

// VoucherRedemption is the append-only record of a voucher applied to a listing
type VoucherRedemption struct {
	ID         int64     `db:"id" json:"id"`
	VoucherID  int64     `db:"voucher_id" json:"voucher_id"`
	SellerID   int64     `db:"seller_id" json:"seller_id"`
	ListingID  int64     `db:"listing_id" json:"listing_id"`
	Discount   int64     `db:"discount" json:"discount"`
	RedeemedAt time.Time `db:"redeemed_at" json:"redeemed_at"`
}

// SellerVoucher is a voucher as seen by an assigned seller
type SellerVoucher struct {
	Voucher
	IssuedCount        int `db:"issued_count" json:"issued_count"`
	SellerRedemptions  int `db:"seller_redemptions" json:"seller_redemptions"`
	RemainingForSeller int `db:"-" json:"remaining_for_seller"`
}

// FeeSource tells where the final posting fee came from
type FeeSource string

const (
	FeeSourceFreeQuota FeeSource = "FREE_QUOTA"
	FeeSourceVoucher   FeeSource = "VOUCHER"
	FeeSourceNone      FeeSource = "NONE"
)

// AppliedVoucher identifies the voucher a fee result used
type AppliedVoucher struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

// FeeResult is the posting fee computed for a seller's next listing
type FeeResult struct {
	Source         FeeSource       `json:"source"`
	FreeRemaining  int             `json:"freeRemaining"`
	FeeBefore      int64           `json:"feeBefore"`
	Discount       int64           `json:"discount"`
	FeeAfter       int64           `json:"feeAfter"`
	AppliedVoucher *AppliedVoucher `json:"appliedVoucher,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
