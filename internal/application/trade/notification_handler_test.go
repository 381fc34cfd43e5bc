package trade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/testutil"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func TestNotificationHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("status change names both labels", func(t *testing.T) {
		notifier := new(mockNotifier)
		h := NewNotificationHandler(notifier, nil)
		order := createTestOrder(t, 100000)
		markPaid(t, order)
		tr, err := order.TransitionTo(trade.OrderStatusProcessing, trade.TransitionCommand{Actor: trade.SystemActor()})
		require.NoError(t, err)
		event := trade.NewOrderStatusChangedEvent(order, tr)

		notifier.On("Notify", ctx, mock.MatchedBy(func(n Notification) bool {
			return n.Kind == "order_status_changed" &&
				n.CustomerID == order.CustomerID &&
				n.EventID == event.EventID() &&
				n.Message == "Your order moved from Paid to Processing."
		})).Return(nil)

		require.NoError(t, h.Handle(ctx, event))
		notifier.AssertExpectations(t)
	})

	t.Run("payment-only change below paid is silent", func(t *testing.T) {
		notifier := new(mockNotifier)
		h := NewNotificationHandler(notifier, nil)
		order := createTestOrder(t, 100000)
		markPaid(t, order)
		_, err := order.TransitionTo(trade.OrderStatusProcessing, trade.TransitionCommand{Actor: trade.SystemActor()})
		require.NoError(t, err)
		partial := trade.PaymentStatusPartiallyPaid
		tr, err := order.TransitionTo(trade.OrderStatusProcessing, trade.TransitionCommand{Actor: trade.SystemActor(), PaymentStatus: &partial})
		require.NoError(t, err)

		require.NoError(t, h.Handle(ctx, trade.NewOrderStatusChangedEvent(order, tr)))
		notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})

	t.Run("notifier errors are returned for redelivery", func(t *testing.T) {
		notifier := new(mockNotifier)
		h := NewNotificationHandler(notifier, nil)
		order := createTestOrder(t, 100000)
		req, err := trade.NewCancellationRequest(order, trade.CustomerActor(order.CustomerID), "Wedding postponed")
		require.NoError(t, err)

		notifier.On("Notify", ctx, mock.Anything).Return(assert.AnError)

		err = h.Handle(ctx, trade.NewCancellationRequestedEvent(req))

		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("unrelated events are ignored", func(t *testing.T) {
		notifier := new(mockNotifier)
		h := NewNotificationHandler(notifier, nil)

		require.NoError(t, h.Handle(ctx, testutil.NewTestEvent("SomethingElse")))
		notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})

	t.Run("log notifier never fails", func(t *testing.T) {
		assert.NoError(t, NewLogNotifier(nil).Notify(ctx, Notification{Kind: "order_placed"}))
	})
}
