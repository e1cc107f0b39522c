// Package notify delivers state-change events to subscribers on a dedicated
// goroutine, so publishers never run subscriber code inline.
package notify

import (
	"context"
	"sort"
	"sync"

	"github.com/loft-dughairi/storefront/pkg/logger"
)

// Event is a published state change
type Event struct {
	Topic   string
	Payload interface{}
}

// Handler receives events for a topic
type Handler func(Event)

type subscription struct {
	id    uint64
	topic string
	fn    Handler
}

type envelope struct {
	event   Event
	barrier chan struct{}
}

// Hub is a publish/subscribe list with queued delivery
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]subscription
	nextID  uint64
	pending []envelope
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
	log     *logger.Logger
}

// NewHub creates a hub and starts its delivery loop
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	h := &Hub{
		subs: make(map[uint64]subscription),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log,
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// Subscribe registers fn for topic and returns a function that removes it
func (h *Hub) Subscribe(topic string, fn Handler) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscription{id: id, topic: topic, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish queues an event. It never blocks on subscribers.
func (h *Hub) Publish(topic string, payload interface{}) {
	h.enqueue(envelope{event: Event{Topic: topic, Payload: payload}})
}

// Flush waits until every event published before the call has been delivered.
// Handlers run on the delivery goroutine and must not call it.
func (h *Hub) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !h.enqueue(envelope{barrier: barrier}) {
		return nil
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops delivery after draining queued events
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()
}

func (h *Hub) enqueue(env envelope) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.pending = append(h.pending, env)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return true
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.wake:
			h.drain()
		case <-h.done:
			h.drain()
			return
		}
	}
}

func (h *Hub) drain() {
	for {
		h.mu.Lock()
		if len(h.pending) == 0 {
			h.mu.Unlock()
			return
		}
		env := h.pending[0]
		h.pending = h.pending[1:]
		var targets []subscription
		if env.barrier == nil {
			for _, s := range h.subs {
				if s.topic == env.event.Topic {
					targets = append(targets, s)
				}
			}
		}
		h.mu.Unlock()

		if env.barrier != nil {
			close(env.barrier)
			continue
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
		for _, s := range targets {
			h.deliver(s, env.event)
		}
	}
}

func (h *Hub) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error(context.Background(), "subscriber panicked", logger.Fields{
				"topic": ev.Topic,
				"panic": r,
			})
		}
	}()
	s.fn(ev)
}
