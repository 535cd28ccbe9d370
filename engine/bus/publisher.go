package bus

import (
	"sync"
	"time"

	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/nslog"
)

// Publisher publishes payloads on topics; *Bus is a Publisher
type Publisher interface {
	Publish(topic string, payload string) error
}

// PublishAsync publishes on the worker pool so that the caller never waits on the broker.
// Failures are logged.
func PublishAsync(pool *async.Pool, pub Publisher, topic string, payload string) {
	err := pool.Submit(func() {
		if err := pub.Publish(topic, payload); err != nil {
			nslog.Errorf("bus: async publish failed: %v", err)
		}
	})
	if err != nil {
		nslog.Warnf("bus: dropped publish on %s: %v", topic, err)
	}
}

// Recorder is a Publisher that keeps every published message, for tests and dry runs
type Recorder struct {
	lock     sync.Mutex
	messages []Message
}

// Message is one recorded publish
type Message struct {
	Topic   string
	Payload string
}

func (r *Recorder) Publish(topic string, payload string) error {
	r.lock.Lock()
	r.messages = append(r.messages, Message{topic, payload})
	r.lock.Unlock()
	return nil
}

// Messages returns the recorded messages of topic, or all messages when topic is empty
func (r *Recorder) Messages(topic string) []Message {
	r.lock.Lock()
	defer r.lock.Unlock()
	var res []Message
	for _, m := range r.messages {
		if topic == "" || m.Topic == topic {
			res = append(res, m)
		}
	}
	return res
}

// Wait polls until at least n messages of topic were recorded or timeout elapses
func (r *Recorder) Wait(topic string, n int, timeout time.Duration) []Message {
	deadline := time.Now().Add(timeout)
	for {
		msgs := r.Messages(topic)
		if len(msgs) >= n || time.Now().After(deadline) {
			return msgs
		}
		time.Sleep(time.Millisecond)
	}
}
