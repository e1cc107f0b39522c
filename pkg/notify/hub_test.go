package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loft-dughairi/storefront/pkg/logger"
)

func TestPublishIsDeferred(t *testing.T) {
	h := NewHub(logger.Nop())
	defer h.Close()

	block := make(chan struct{})
	var mu sync.Mutex
	var got []interface{}
	h.Subscribe("cart", func(ev Event) {
		<-block
		mu.Lock()
		got = append(got, ev.Payload)
		mu.Unlock()
	})

	// Publish must return even though the subscriber is blocked
	done := make(chan struct{})
	go func() {
		h.Publish("cart", 1)
		h.Publish("cart", 2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a subscriber")
	}

	close(block)
	require.NoError(t, h.Flush(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []interface{}{1, 2}, got)
}

func TestTopicsAndUnsubscribe(t *testing.T) {
	h := NewHub(logger.Nop())
	defer h.Close()

	var mu sync.Mutex
	counts := map[string]int{}
	record := func(name string) Handler {
		return func(Event) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		}
	}

	h.Subscribe("cart", record("badge"))
	unsub := h.Subscribe("cart", record("page"))
	h.Subscribe("wishlist", record("wishlist"))

	h.Publish("cart", nil)
	require.NoError(t, h.Flush(context.Background()))
	unsub()
	unsub()
	h.Publish("cart", nil)
	require.NoError(t, h.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, counts["badge"])
	assert.Equal(t, 1, counts["page"])
	assert.Equal(t, 0, counts["wishlist"])
}

func TestSubscriberPanicDoesNotStopDelivery(t *testing.T) {
	h := NewHub(logger.Nop())
	defer h.Close()

	delivered := make(chan struct{}, 1)
	h.Subscribe("session", func(Event) { panic("boom") })
	h.Subscribe("session", func(Event) { delivered <- struct{}{} })

	h.Publish("session", "logout")
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("second subscriber never ran")
	}
}

func TestCloseDrainsAndRejects(t *testing.T) {
	h := NewHub(logger.Nop())

	var mu sync.Mutex
	n := 0
	h.Subscribe("cart", func(Event) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	h.Publish("cart", nil)
	h.Close()
	h.Close()

	h.Publish("cart", nil)
	assert.NoError(t, h.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, n)
}
