// Package client is the client facade (C10): it wires C1–C9 into a single
// constructed instance with an explicit open/teardown lifecycle, per
// spec.md §9's "the engine is a single constructed instance ... avoid
// process-wide singletons". Grounded on the teacher's own client.Client,
// which plays the identical composition-root role for its HTTP-bound
// sub-clients; ported from per-call HTTP requests to in-process wiring of
// the delegation manager, replica, identity resolver, actions and
// transport.
package client

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/opchan/core/actions"
	"github.com/opchan/core/core"
	"github.com/opchan/core/delegation"
	"github.com/opchan/core/identity"
	"github.com/opchan/core/replica"
	"github.com/opchan/core/transport"
)

var tracer = otel.Tracer("github.com/opchan/core/client")

// Config bundles the capabilities spec.md §6 says are injected at
// construction: clock, durable store, transport, wallet signer (supplied
// per-call to CreateWalletDelegation, not here), and name resolver.
type Config struct {
	DurableStore replica.Durable   // nil runs in-memory only
	DelegationDB delegation.Store  // required
	Transport    transport.Transport // nil disables outbound send
	NameLookup   identity.NameLookup // nil uses identity.NoopNameLookup
	Clock        func() time.Time  // nil defaults to time.Now
}

// Client is C10: the single object an embedding application holds.
type Client struct {
	Delegation *delegation.Manager
	Replica    *replica.Replica
	Identity   *identity.Resolver
	Actions    *actions.Actions
	Transport  transport.Transport
}

// Open constructs and wires every component, hydrating the replica from
// DurableStore if present, and wiring the transport's receive callback to
// the replica's apply_message entry point — the single ingress path for
// both locally authored and network-delivered messages (§2's data-flow
// diagram).
func Open(ctx context.Context, cfg Config) (*Client, error) {
	ctx, span := tracer.Start(ctx, "client.Open")
	defer span.End()

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	mgr := delegation.NewManager(cfg.DelegationDB, clock)

	r, err := replica.Open(cfg.DurableStore, mgr)
	if err != nil {
		return nil, err
	}

	resolver := identity.NewResolver(r, cfg.NameLookup, clock)

	a := actions.New(mgr, r, cfg.Transport, resolver, func() int64 { return clock().UnixMilli() })

	c := &Client{
		Delegation: mgr,
		Replica:    r,
		Identity:   resolver,
		Actions:    a,
		Transport:  cfg.Transport,
	}

	if cfg.Transport != nil {
		cfg.Transport.OnReceive(func(msg core.Message) {
			_, _ = r.ApplyMessage(msg)
		})
	}

	return c, nil
}

// Close tears down the client's owned resources. The durable store and
// transport are owned by whoever constructed Config and are closed by the
// caller, not here — the facade only owns the wiring between them.
func (c *Client) Close() error {
	return nil
}
