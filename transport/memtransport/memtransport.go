// Package memtransport is an in-process Transport: every instance sharing
// the same Bus delivers to every other instance's receive handler, with no
// network involved. Grounded on the teacher's x/socket manager, which keeps
// an in-memory registry of connected channels and fans messages out to
// every one of them; this collapses that registry down to a single
// process-wide fan-out bus for tests and single-device demos.
package memtransport

import (
	"context"
	"sync"

	"github.com/opchan/core/core"
	"github.com/opchan/core/transport"
)

// Bus is the shared in-memory fan-out point multiple Transports attach to.
// A zero Bus is ready to use.
type Bus struct {
	mu      sync.Mutex
	members []*Transport
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) attach(t *Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members = append(b.members, t)
}

func (b *Bus) broadcast(from *Transport, msg core.Message) {
	b.mu.Lock()
	members := append([]*Transport{}, b.members...)
	b.mu.Unlock()

	for _, m := range members {
		if m == from {
			continue
		}
		m.deliver(msg)
	}
}

// Transport is one endpoint on a Bus.
type Transport struct {
	bus           *Bus
	mu            sync.Mutex
	receiveHandlers []transport.ReceiveHandler
	healthHandlers  []transport.HealthHandler
	syncHandlers    []transport.SyncHandler
	ready           bool
}

// New attaches a new endpoint to bus. The endpoint starts ready; call
// SetReady(false) to simulate a disconnect in tests.
func New(bus *Bus) *Transport {
	t := &Transport{bus: bus, ready: true}
	bus.attach(t)
	return t
}

func (t *Transport) Send(ctx context.Context, msg core.Message) error {
	if !t.IsReady() {
		return core.ErrTransportUnavailable{Cause: errNotReady}
	}
	t.bus.broadcast(t, msg)
	return nil
}

func (t *Transport) OnReceive(handler transport.ReceiveHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiveHandlers = append(t.receiveHandlers, handler)
}

func (t *Transport) OnHealth(handler transport.HealthHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healthHandlers = append(t.healthHandlers, handler)
}

func (t *Transport) OnSync(handler transport.SyncHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncHandlers = append(t.syncHandlers, handler)
}

func (t *Transport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// SetReady simulates a link going up or down, firing every registered
// HealthHandler.
func (t *Transport) SetReady(ready bool) {
	t.mu.Lock()
	t.ready = ready
	handlers := append([]transport.HealthHandler{}, t.healthHandlers...)
	t.mu.Unlock()
	for _, h := range handlers {
		h(ready)
	}
}

func (t *Transport) deliver(msg core.Message) {
	t.mu.Lock()
	handlers := append([]transport.ReceiveHandler{}, t.receiveHandlers...)
	t.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

type notReadyError struct{}

func (notReadyError) Error() string { return "transport not ready" }

var errNotReady = notReadyError{}
