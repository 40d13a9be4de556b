package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	var seen []string
	d.Subscribe(EventComplaintCreated, func(context.Context, Event) error {
		seen = append(seen, "first")
		return errors.New("sink down")
	})
	d.Subscribe(EventComplaintCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.ComplaintID)
		return nil
	})

	err := d.Publish(context.Background(), New(EventComplaintCreated, "CMP-2025-0001", SystemActor, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second:CMP-2025-0001"}, seen)
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	counts := map[EventType]int{}
	SubscribeAll(d, func(_ context.Context, e Event) error {
		counts[e.Type]++
		return nil
	})

	for _, eventType := range AllEventTypes() {
		require.NoError(t, d.Publish(context.Background(), New(eventType, "CMP-2025-0002", OperatorActor("op-1"), nil)))
	}
	assert.Len(t, counts, len(AllEventTypes()))
}
