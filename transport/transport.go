// Package transport defines the engine's transport boundary (C9): sending
// locally authored messages outward, receiving remote ones, and reporting
// link health and sync progress. The engine ships two concrete
// implementations — memtransport (in-process, for tests and single-device
// demos) and redispubsub (a real pub/sub-backed reference transport) — both
// satisfying this same interface, grounded on the teacher's x/socket
// manager, which plays the identical role of a pluggable, callback-driven
// delivery channel in front of the message service.
package transport

import (
	"context"

	"github.com/opchan/core/core"
)

// HealthHandler is invoked whenever the transport's view of link health
// changes.
type HealthHandler func(healthy bool)

// SyncHandler is invoked when the transport learns of a remote peer's sync
// high-water mark, in unix milliseconds.
type SyncHandler func(lastSyncMs int64)

// ReceiveHandler is invoked for every remote message the transport
// delivers. It does not return an error: rejecting a message is the
// ingress pipeline's job, not the transport's.
type ReceiveHandler func(msg core.Message)

// Transport is the capability the client facade (C10) and the forum
// actions (C7) send outgoing, signed messages through, and the one
// operation besides wallet-signing and durable I/O that spec.md's
// concurrency model allows to suspend the caller.
type Transport interface {
	Send(ctx context.Context, msg core.Message) error
	OnReceive(handler ReceiveHandler)
	OnHealth(handler HealthHandler)
	OnSync(handler SyncHandler)
	IsReady() bool
}
