package bus

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/nsutils"
	"github.com/lattice-mc/netsync/engine/opmon"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

// ErrClosed is returned by operations on a closed bus
var ErrClosed = errors.New("bus: closed")

// Handler handles one message payload of a subscribed topic
type Handler func(payload string)

// Bus publishes to and subscribes on a Transport. Every subscription has its own receive
// goroutine and its own worker goroutine, so a slow handler never delays other topics.
type Bus struct {
	transport         Transport
	reconnectInterval time.Duration

	lock   sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates a bus over transport
func New(transport Transport) *Bus {
	return &Bus{
		transport:         transport,
		reconnectInterval: consts.BUS_RECONNECT_INTERVAL,
		subs:              map[*Subscription]struct{}{},
	}
}

// SetReconnectInterval sets the wait time before a failed subscription listens again
func (b *Bus) SetReconnectInterval(d time.Duration) {
	b.lock.Lock()
	b.reconnectInterval = d
	b.lock.Unlock()
}

// Publish sends payload on topic. Failures are returned to the caller and never retried.
func (b *Bus) Publish(topic string, payload string) error {
	op := opmon.StartOperation("bus.publish")
	defer op.Finish(consts.BUS_PUBLISH_WARN_THRESHOLD)

	if consts.DEBUG_MESSAGES {
		nslog.Debugf("bus: publish %s: %s", topic, payload)
	}
	if err := b.transport.Publish(topic, []byte(payload)); err != nil {
		return errors.Wrapf(err, "bus: publish %s", topic)
	}
	return nil
}

// Subscribe starts delivering messages of topic to handler, in arrival order
func (b *Bus) Subscribe(topic string, handler Handler) (*Subscription, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		topic:             topic,
		bus:               b,
		handler:           handler,
		reconnectInterval: b.reconnectInterval,
		queue:             xnsyncutil.NewSyncQueue(),
		ctx:               ctx,
		cancel:            cancel,
	}
	b.subs[sub] = struct{}{}
	sub.receiving.Add(1)
	go sub.receiveLoop()
	go sub.workLoop()
	nslog.Debugf("bus: subscribed %s", topic)
	return sub, nil
}

// Close cancels every subscription and closes the transport
func (b *Bus) Close() error {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.lock.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return b.transport.Close()
}

func (b *Bus) forget(sub *Subscription) {
	b.lock.Lock()
	delete(b.subs, sub)
	b.lock.Unlock()
}

// Subscription is a live subscription of one topic
type Subscription struct {
	topic             string
	bus               *Bus
	handler           Handler
	reconnectInterval time.Duration
	queue             *xnsyncutil.SyncQueue
	ctx               context.Context
	cancel            context.CancelFunc
	receiving         sync.WaitGroup
	reconnects        xnsyncutil.AtomicInt
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() string {
	return s.topic
}

// Reconnects returns how many times the subscription listened again after a failure
func (s *Subscription) Reconnects() int {
	return int(s.reconnects.Load())
}

// Backlog returns the number of received messages not yet handled
func (s *Subscription) Backlog() int {
	return s.queue.Len()
}

// Cancel stops receiving and handling messages. Messages still queued are dropped.
// It is safe to call Cancel from the subscription's own handler.
func (s *Subscription) Cancel() {
	s.cancel()
	s.receiving.Wait()
	s.bus.forget(s)
}

func (s *Subscription) receiveLoop() {
	defer s.receiving.Done()
	defer s.queue.Close()

	first := true
	nsutils.RepeatUntilStopped(s.ctx.Done(), s.reconnectInterval, func() bool {
		if !first {
			s.reconnects.Store(s.reconnects.Load() + 1)
			nslog.Infof("bus: reconnecting subscription %s", s.topic)
		}
		first = false

		err := s.bus.transport.Listen(s.ctx, s.topic, s.deliver)
		if s.ctx.Err() != nil {
			return true
		}
		nslog.Errorf("bus: subscription %s lost: %v, retry in %s", s.topic, err, s.reconnectInterval)
		return false
	})
}

func (s *Subscription) deliver(payload []byte) {
	s.queue.Push(string(payload))
	if n := s.queue.Len(); n >= consts.BUS_QUEUE_WARN_LEN && n%consts.BUS_QUEUE_WARN_LEN == 0 {
		nslog.Warnf("bus: subscription %s has %d pending messages", s.topic, n)
	}
}

func (s *Subscription) workLoop() {
	for {
		item := s.queue.Pop()
		if item == nil || s.ctx.Err() != nil {
			return
		}
		payload := item.(string)
		if consts.DEBUG_MESSAGES {
			nslog.Debugf("bus: %s <<< %s", s.topic, payload)
		}
		nsutils.RunPanicless(func() {
			s.handler(payload)
		})
	}
}
