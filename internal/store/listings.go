package store

import (
	"context"
	"time"

	"marketplace-service/internal/models"
)

// CreateCategory inserts a category with an optional posting fee
func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	return s.insert(ctx, c,
		`INSERT INTO categories (name, post_fee, created_at) VALUES (?, ?, ?)
		RETURNING id, name, post_fee, created_at`,
		c.Name, c.PostFee, time.Now().UTC())
}

// GetCategory retrieves a category by ID
func (c conn) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var cat models.Category
	if err := c.get(ctx, &cat, "SELECT id, name, post_fee, created_at FROM categories WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &cat, nil
}

const listingColumns = `id, seller_id, category_id, name, description, price, quantity, sold,
	is_available, post_fee, fee_source, created_at, updated_at`

// GetListing retrieves a listing by ID
func (c conn) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	var l models.Listing
	if err := c.get(ctx, &l, "SELECT "+listingColumns+" FROM listings WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &l, nil
}

// CountListingsBySeller counts every listing a seller ever posted
func (c conn) CountListingsBySeller(ctx context.Context, sellerID int64) (int, error) {
	var n int
	err := c.get(ctx, &n, "SELECT COUNT(*) FROM listings WHERE seller_id = ?", sellerID)
	return n, err
}

// CountOtherListings counts a seller's listings other than listingID
func (c conn) CountOtherListings(ctx context.Context, sellerID, listingID int64) (int, error) {
	var n int
	err := c.get(ctx, &n, "SELECT COUNT(*) FROM listings WHERE seller_id = ? AND id <> ?", sellerID, listingID)
	return n, err
}

// CreateListing inserts a listing; the fee columns are filled in later by SetListingFee
func (t *Tx) CreateListing(ctx context.Context, l *models.Listing) error {
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	if l.FeeSource == "" {
		l.FeeSource = models.FeeSourceNone
	}
	return t.insert(ctx, &l.ID,
		`INSERT INTO listings (seller_id, category_id, name, description, price, quantity, sold,
			is_available, post_fee, fee_source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)
		RETURNING id`,
		l.SellerID, l.CategoryID, l.Name, l.Description, l.Price, l.Quantity,
		l.IsAvailable, l.PostFee, l.FeeSource, l.CreatedAt, l.UpdatedAt)
}

// SetListingFee records the posting fee charged for a listing
func (t *Tx) SetListingFee(ctx context.Context, listingID, fee int64, source models.FeeSource) error {
	return t.execOne(ctx,
		"UPDATE listings SET post_fee = ?, fee_source = ?, updated_at = ? WHERE id = ?",
		fee, source, time.Now().UTC(), listingID)
}

// LockListing reads a listing and holds its row lock until the transaction ends
func (t *Tx) LockListing(ctx context.Context, id int64) (*models.Listing, error) {
	var l models.Listing
	err := t.get(ctx, &l, "SELECT "+listingColumns+" FROM listings WHERE id = ?"+t.forUpdate(), id)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CommitStock moves quantity units of a listing from stock to sold. Stock is
// clamped at zero; sold always grows by the full quantity.
func (t *Tx) CommitStock(ctx context.Context, listingID int64, quantity int) error {
	return t.execOne(ctx,
		`UPDATE listings
		SET quantity = CASE WHEN quantity > ? THEN quantity - ? ELSE 0 END,
			sold = sold + ?,
			updated_at = ?
		WHERE id = ?`,
		quantity, quantity, quantity, time.Now().UTC(), listingID)
}
