package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("shipping")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipping, st)

	_, err = ParseOrderStatus("SHIPPING")
	assert.ErrorIs(t, err, ErrUnknownStatus)
	_, err = ParseOrderStatus("")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		ok       bool
		buyer    bool
		seller   bool
		commits  bool
	}{
		{OrderStatusPending, OrderStatusShipping, true, false, true, false},
		{OrderStatusShipping, OrderStatusCompleted, true, true, false, true},
		{OrderStatusPending, OrderStatusCancelled, true, true, true, false},
		{OrderStatusShipping, OrderStatusCancelled, true, true, true, false},
		{OrderStatusPending, OrderStatusCompleted, false, false, false, false},
		{OrderStatusShipping, OrderStatusPending, false, false, false, false},
		{OrderStatusPending, OrderStatusPending, false, false, false, false},
		{OrderStatusCompleted, OrderStatusCancelled, false, false, false, false},
		{OrderStatusCancelled, OrderStatusPending, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			tr, ok := LookupTransition(tt.from, tt.to)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.buyer, tr.Allows(PartyBuyer))
			assert.Equal(t, tt.seller, tr.Allows(PartySeller))
			assert.False(t, tr.Allows(PartyNone))
			assert.Equal(t, tt.commits, tr.CommitsStock)
		})
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled} {
		assert.True(t, s.Terminal())
		assert.Empty(t, Transitions(s))
	}
	assert.Len(t, Transitions(OrderStatusPending), 2)
	assert.Len(t, Transitions(OrderStatusShipping), 2)
}

func TestVoucherWindowAndRemaining(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(time.Hour)
	v := &Voucher{StartsAt: now.Add(-time.Hour), EndsAt: &end, UsageLimit: 3, UsedCount: 1}

	assert.True(t, v.InWindow(now))
	assert.True(t, v.InWindow(end))
	assert.False(t, v.InWindow(end.Add(time.Second)))
	assert.False(t, v.InWindow(now.Add(-2*time.Hour)))
	assert.Equal(t, 2, v.Remaining())

	v.EndsAt = nil
	assert.True(t, v.InWindow(now.Add(1000*time.Hour)))

	v.UsedCount = 5
	assert.Equal(t, 0, v.Remaining())
}
