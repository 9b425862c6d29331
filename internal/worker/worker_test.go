package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	notes []Notification
	fail  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.fail != nil {
		return r.fail
	}
	r.notes = append(r.notes, n)
	return nil
}

func newTestWorker(t *testing.T) (*NotificationWorker, *recordingNotifier) {
	t.Helper()
	st, err := store.NewStore(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	notifier := &recordingNotifier{}
	return NewNotificationWorker(nil, st, notifier), notifier
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: raw}
}

func TestOrderCreatedNotifiesSellerOnce(t *testing.T) {
	w, notifier := newTestWorker(t)
	msg := message(t, &models.OrderCreatedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:   1,
		BuyerID:   2,
		SellerID:  3,
		ListingID: 4,
		Quantity:  2,
	})

	require.NoError(t, w.HandleMessage(context.Background(), msg))
	require.NoError(t, w.HandleMessage(context.Background(), msg))

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, int64(3), notifier.notes[0].UserID)
	assert.Equal(t, models.EventTypeOrderCreated, notifier.notes[0].Kind)
}

func TestStatusChangeNotifiesOtherParty(t *testing.T) {
	w, notifier := newTestWorker(t)

	require.NoError(t, w.HandleMessage(context.Background(), message(t, &models.OrderStatusChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   1, ActorID: 3, BuyerID: 2, SellerID: 3,
		From: models.OrderStatusPending, To: models.OrderStatusShipping,
	})))
	require.NoError(t, w.HandleMessage(context.Background(), message(t, &models.OrderStatusChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   1, ActorID: 2, BuyerID: 2, SellerID: 3,
		From: models.OrderStatusShipping, To: models.OrderStatusCompleted,
	})))

	require.Len(t, notifier.notes, 2)
	assert.Equal(t, int64(2), notifier.notes[0].UserID)
	assert.Equal(t, int64(3), notifier.notes[1].UserID)
}

func TestOrderCompletedReportsShortfall(t *testing.T) {
	w, notifier := newTestWorker(t)

	require.NoError(t, w.HandleMessage(context.Background(), message(t, &models.OrderCompletedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCompleted),
		OrderID:   1,
		BuyerID:   2,
		Commits: []models.StockCommit{
			{ListingID: 4, Ordered: 2, Taken: 2},
			{ListingID: 5, Ordered: 3, Taken: 1},
		},
	})))

	require.Len(t, notifier.notes, 1)
	assert.Contains(t, notifier.notes[0].Message, "listing 5")
}

func TestFailedNotificationIsNotMarkedProcessed(t *testing.T) {
	w, notifier := newTestWorker(t)
	msg := message(t, &models.VoucherRedeemedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeVoucherRedeemed),
		VoucherID: 1, Code: "SAVE30", SellerID: 3, ListingID: 9, Discount: 3000,
	})

	notifier.fail = errors.New("smtp down")
	assert.Error(t, w.HandleMessage(context.Background(), msg))

	notifier.fail = nil
	require.NoError(t, w.HandleMessage(context.Background(), msg))
	require.Len(t, notifier.notes, 1)
	assert.Contains(t, notifier.notes[0].Message, "SAVE30")
}

func TestUnknownEventIsIgnored(t *testing.T) {
	w, notifier := newTestWorker(t)

	require.NoError(t, w.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE","event_id":"x"}`)}))
	assert.Empty(t, notifier.notes)

	err := w.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.ErrorIs(t, err, broker.ErrMalformedEvent)
}
