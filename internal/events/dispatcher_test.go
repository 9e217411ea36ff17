package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishContinuesPastFailingHandler(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventAlertEmitted, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("sink down")
	})
	d.Subscribe(EventAlertEmitted, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventAlertFailed, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventAlertEmitted}))
	assert.Equal(t, []string{"first", "second"}, calls)
}
