package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedCancellationEvent() *trade.CancellationApprovedEvent {
	reviewer := testutil.TestAdminID()
	req := &trade.CancellationRequest{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderID:           uuid.New(),
		OrderNumber:       "INV-20260101-00042",
		Status:            trade.CancellationStatusApproved,
		ReviewedBy:        &reviewer,
		RefundInitiated:   true,
		RefundAmount:      decimal.NewFromInt(200000),
		RestoreStock:      true,
	}
	return trade.NewCancellationApprovedEvent(req)
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	serializer := NewEventSerializer()
	RegisterAllEvents(serializer)
	original := approvedCancellationEvent()

	payload, err := serializer.Serialize(original)
	require.NoError(t, err)

	decoded, err := serializer.Deserialize(trade.EventTypeCancellationApproved, payload)
	require.NoError(t, err)

	event, ok := decoded.(*trade.CancellationApprovedEvent)
	require.True(t, ok, "got %T", decoded)
	assert.Equal(t, original.EventID(), event.EventID())
	assert.Equal(t, original.AggregateID(), event.AggregateID())
	assert.Equal(t, original.OrderNumber, event.OrderNumber)
	assert.True(t, original.RefundAmount.Equal(event.RefundAmount))
	assert.True(t, event.RestoreStock)
}

func TestEventSerializer_UnknownType(t *testing.T) {
	serializer := NewEventSerializer()

	_, err := serializer.Deserialize("Nope", []byte(`{}`))

	assert.ErrorContains(t, err, "unknown event type")
}

func TestEventSerializer_BadPayload(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register("Test", &testutil.TestEvent{})

	_, err := serializer.Deserialize("Test", []byte(`{not json`))

	assert.Error(t, err)
}

func TestRegisterAllEvents(t *testing.T) {
	serializer := NewEventSerializer()
	RegisterAllEvents(serializer)

	assert.Equal(t, []string{
		trade.EventTypeCancellationApproved,
		trade.EventTypeCancellationRefundCompleted,
		trade.EventTypeCancellationRefundFailed,
		trade.EventTypeCancellationRejected,
		trade.EventTypeCancellationRequested,
		trade.EventTypeOrderPlaced,
		trade.EventTypeOrderStatusChanged,
	}, serializer.RegisteredTypes())
}
