package memtransport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opchan/core/core"
)

func TestSendDeliversToOtherMembers(t *testing.T) {
	bus := NewBus()
	a := New(bus)
	b := New(bus)

	var received []core.Message
	b.OnReceive(func(msg core.Message) {
		received = append(received, msg)
	})

	msg := core.Message{Envelope: core.Envelope{Kind: core.KindPost, ID: "p1"}}
	require.NoError(t, a.Send(context.Background(), msg))

	require.Len(t, received, 1)
	assert.Equal(t, "p1", received[0].ID)
}

func TestSendDoesNotDeliverToSender(t *testing.T) {
	bus := NewBus()
	a := New(bus)

	var received []core.Message
	a.OnReceive(func(msg core.Message) {
		received = append(received, msg)
	})

	require.NoError(t, a.Send(context.Background(), core.Message{Envelope: core.Envelope{ID: "p1"}}))
	assert.Empty(t, received)
}

func TestSendFailsWhenNotReady(t *testing.T) {
	bus := NewBus()
	a := New(bus)
	a.SetReady(false)

	err := a.Send(context.Background(), core.Message{Envelope: core.Envelope{ID: "p1"}})
	assert.Error(t, err)
	assert.IsType(t, core.ErrTransportUnavailable{}, err)
}
