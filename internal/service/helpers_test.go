package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) record(eventType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishOrderCompleted(_ context.Context, e *models.OrderCompletedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishListingCreated(_ context.Context, e *models.ListingCreatedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishVoucherRedeemed(_ context.Context, e *models.VoucherRedeemedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// memoryIdempotency is an in-process IdempotencyStore
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
	ttls map[string]time.Duration
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryIdempotency) ttl(scope, key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[scope+":"+key]
}

func (m *memoryIdempotency) ClaimIdempotencyKey(_ context.Context, scope, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	if _, ok := m.keys[k]; !ok {
		m.ttls[k] = ttl
	}
	val, ok := m.keys[k]
	if !ok {
		m.keys[k] = "pending"
		return 0, nil
	}
	if val == "pending" {
		return 0, redisclient.ErrKeyInFlight
	}
	return strconv.ParseInt(val, 10, 64)
}

func (m *memoryIdempotency) CompleteIdempotencyKey(_ context.Context, scope, key string, id int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[scope+":"+key] = strconv.FormatInt(id, 10)
	m.ttls[scope+":"+key] = ttl
	return nil
}

func (m *memoryIdempotency) ReleaseIdempotencyKey(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, scope+":"+key)
	delete(m.ttls, scope+":"+key)
	return nil
}

type fixture struct {
	store     *store.Store
	events    *recordingPublisher
	inventory *InventoryLedger
	orders    *OrderService
	fees      *FeeService
	listings  *ListingService
	vouchers  *VoucherService
	category  *models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewStore(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	return fixtureOn(t, st, "Electronics")
}

// newPostgresFixture runs against TEST_DATABASE_URL. Rows from earlier runs
// stay behind, so callers use fresh seller ids and voucher codes.
func newPostgresFixture(t *testing.T) *fixture {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - set TEST_DATABASE_URL")
	}

	st, err := store.NewStore(store.DriverPostgres, url)
	require.NoError(t, err)
	return fixtureOn(t, st, fmt.Sprintf("Electronics-%d", time.Now().UnixNano()))
}

func fixtureOn(t *testing.T, st *store.Store, categoryName string) *fixture {
	t.Helper()
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	fee := int64(10000)
	cat := &models.Category{Name: categoryName, PostFee: &fee}
	require.NoError(t, st.CreateCategory(context.Background(), cat))

	settings := DefaultSettings()
	events := &recordingPublisher{}
	inventory := NewInventoryLedger(st)
	fees := NewFeeService(st, nil, settings)

	return &fixture{
		store:     st,
		events:    events,
		inventory: inventory,
		orders:    NewOrderService(st, inventory, events, nil, settings),
		fees:      fees,
		listings:  NewListingService(st, fees, events, nil, settings),
		vouchers:  NewVoucherService(st),
		category:  cat,
	}
}

// seedListing inserts a listing without charging a fee
func (f *fixture) seedListing(t *testing.T, sellerID, price int64, quantity int) *models.Listing {
	t.Helper()
	l := &models.Listing{
		SellerID:    sellerID,
		CategoryID:  f.category.ID,
		Name:        fmt.Sprintf("item of seller %d", sellerID),
		Price:       price,
		Quantity:    quantity,
		IsAvailable: true,
	}
	require.NoError(t, f.store.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.CreateListing(context.Background(), l)
	}))
	return l
}

// seedListings gives a seller n prior listings
func (f *fixture) seedListings(t *testing.T, sellerID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.seedListing(t, sellerID, 1000, 1)
	}
}

// seedVoucher creates a voucher valid since yesterday and assigns it to the sellers
func (f *fixture) seedVoucher(t *testing.T, code string, typ models.DiscountType, value string, limit int, sellers ...int64) *models.Voucher {
	t.Helper()
	starts := time.Now().UTC().Add(-24 * time.Hour)
	v, err := f.vouchers.CreateVoucher(context.Background(), 1, &VoucherInput{
		Code:         code,
		DiscountType: typ,
		Value:        decimal.RequireFromString(value),
		StartsAt:     &starts,
		UsageLimit:   limit,
	})
	require.NoError(t, err)
	for _, s := range sellers {
		require.NoError(t, f.vouchers.AssignVoucher(context.Background(), v.ID, s, 10))
	}
	return v
}

func (f *fixture) listing(t *testing.T, id int64) *models.Listing {
	t.Helper()
	l, err := f.store.GetListing(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (f *fixture) voucher(t *testing.T, id int64) *models.Voucher {
	t.Helper()
	v, err := f.store.GetVoucher(context.Background(), id)
	require.NoError(t, err)
	return v
}

func intPtr(n int) *int {
	return &n
}
