// Package redispubsub is a Transport backed by Redis pub/sub: Send
// publishes the JSON-encoded message to a single shared channel, and a
// background subscriber loop delivers everything it receives to the
// registered ReceiveHandlers. Grounded directly on the teacher's
// x/message.Service, which publishes freshly created messages to a redis
// channel via rdb.Publish so other nodes' subscribers pick them up;
// ported from per-timeline channels to a single forum-wide channel.
package redispubsub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/opchan/core/core"
	"github.com/opchan/core/transport"
)

// Transport is a Redis-pub/sub-backed reference implementation of
// transport.Transport.
type Transport struct {
	rdb     *redis.Client
	channel string

	mu              sync.Mutex
	receiveHandlers []transport.ReceiveHandler
	healthHandlers  []transport.HealthHandler
	syncHandlers    []transport.SyncHandler
	ready           bool

	cancel context.CancelFunc
}

// New builds a Transport publishing to and subscribing on channel, and
// starts its background receive loop. Call Close to stop it.
func New(rdb *redis.Client, channel string) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		rdb:     rdb,
		channel: channel,
		cancel:  cancel,
	}
	go t.subscribeLoop(ctx)
	return t
}

func (t *Transport) subscribeLoop(ctx context.Context) {
	sub := t.rdb.Subscribe(ctx, t.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		t.setReady(false)
		return
	}
	t.setReady(true)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case redisMsg, ok := <-ch:
			if !ok {
				t.setReady(false)
				return
			}
			var msg core.Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				continue
			}
			t.deliver(msg)
		}
	}
}

func (t *Transport) Send(ctx context.Context, msg core.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message for transport")
	}
	if err := t.rdb.Publish(ctx, t.channel, raw).Err(); err != nil {
		return core.ErrTransportUnavailable{Cause: err}
	}
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

func (t *Transport) setReady(ready bool) {
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

// Close stops the background subscribe loop. It does not close the
// underlying redis.Client, which the caller owns.
func (t *Transport) Close() {
	t.cancel()
}
