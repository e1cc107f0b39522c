package optimistic

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/pkg/notify"
)

type list struct {
	Items []int
}

func cloneList(l list) list {
	return list{Items: append([]int(nil), l.Items...)}
}

type authFlag struct{ on atomic.Bool }

func (a *authFlag) IsAuthenticated() bool { return a.on.Load() }

type backend struct {
	mu      sync.Mutex
	items   []int
	calls   int
	err     error
	entered chan struct{}
	release chan struct{}
}

func (b *backend) fetch(ctx context.Context) (*list, error) {
	b.mu.Lock()
	b.calls++
	entered, release := b.entered, b.release
	b.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return &list{Items: append([]int(nil), b.items...)}, nil
}

func (b *backend) fetchCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newController(t *testing.T, b *backend, auth *authFlag) *Controller[list] {
	t.Helper()
	hub := notify.NewHub(logger.Nop())
	t.Cleanup(hub.Close)
	c := New(Options[list]{
		Name:     "test",
		Fetch:    b.fetch,
		Clone:    cloneList,
		Empty:    func() list { return list{Items: []int{}} },
		Auth:     auth,
		ErrorTTL: -1,
		Hub:      hub,
		Logger:   logger.Nop(),
	})
	t.Cleanup(c.Close)
	return c
}

func signedIn() *authFlag {
	a := &authFlag{}
	a.on.Store(true)
	return a
}

func appendItem(v int) func(list) (list, error) {
	return func(l list) (list, error) {
		l.Items = append(l.Items, v)
		return l, nil
	}
}

func TestMutateAppliesLocalBeforeRemote(t *testing.T) {
	b := &backend{items: []int{1}}
	c := newController(t, b, signedIn())
	require.NoError(t, c.Refresh(context.Background()))

	var seen State[list]
	err := c.Mutate(context.Background(), Mutation[list]{
		Op:    "add",
		Local: appendItem(2),
		Remote: func(ctx context.Context) (*list, error) {
			seen = c.Snapshot()
			return nil, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, seen.Value.Items)
	assert.True(t, seen.Loading)

	final := c.Snapshot()
	assert.Equal(t, []int{1, 2}, final.Value.Items)
	assert.False(t, final.Loading)
	assert.Empty(t, final.Error)
	assert.Equal(t, 1, b.fetchCalls(), "confirmed mutation without Refetch does not fetch")
}

func TestMutateRollbackMatchesCanonicalFetch(t *testing.T) {
	b := &backend{items: []int{1, 2}}
	c := newController(t, b, signedIn())
	require.NoError(t, c.Refresh(context.Background()))

	b.mu.Lock()
	b.items = []int{1, 2, 9}
	b.mu.Unlock()

	rejected := errs.New(errs.Conflict, "Only 2 left in stock").WithStatus(http.StatusConflict)
	err := c.Mutate(context.Background(), Mutation[list]{
		Op:             "add",
		Local:          appendItem(3),
		Remote:         func(ctx context.Context) (*list, error) { return nil, rejected },
		FailureMessage: "Failed to update",
	})
	require.ErrorIs(t, err, rejected)

	st := c.Snapshot()
	assert.Equal(t, []int{1, 2, 9}, st.Value.Items, "state must equal the fresh canonical fetch")
	assert.Equal(t, "Only 2 left in stock", st.Error)
	assert.False(t, st.Loading)
	assert.Equal(t, 2, b.fetchCalls())
}

func TestMutateRollbackRestoresWhenRefetchFails(t *testing.T) {
	b := &backend{items: []int{5}}
	c := newController(t, b, signedIn())
	require.NoError(t, c.Refresh(context.Background()))

	b.mu.Lock()
	b.err = errs.New(errs.ServiceUnavailable, "")
	b.mu.Unlock()

	err := c.Mutate(context.Background(), Mutation[list]{
		Op:             "add",
		Local:          appendItem(6),
		Remote:         func(ctx context.Context) (*list, error) { return nil, errs.New(errs.DeadlineExceeded, "") },
		FailureMessage: "Failed to update",
	})
	require.Error(t, err)

	st := c.Snapshot()
	assert.Equal(t, []int{5}, st.Value.Items, "optimistic value must not survive")
	assert.Equal(t, "The request timed out, please try again", st.Error)
	assert.False(t, st.Loading)
}

func TestMutateUnauthenticatedIsNoop(t *testing.T) {
	b := &backend{items: []int{1}}
	auth := signedIn()
	c := newController(t, b, auth)
	require.NoError(t, c.Refresh(context.Background()))
	before := c.Snapshot().Value

	auth.on.Store(false)
	remoteCalled := false
	err := c.Mutate(context.Background(), Mutation[list]{
		Op:     "add",
		Local:  appendItem(2),
		Remote: func(ctx context.Context) (*list, error) { remoteCalled = true; return nil, nil },
	})

	assert.True(t, errs.Is(err, errs.Unauthenticated))
	assert.False(t, remoteCalled)
	assert.Equal(t, 1, b.fetchCalls())
	st := c.Snapshot()
	assert.Equal(t, before, st.Value)
	assert.NotEmpty(t, st.Error)

	require.NoError(t, c.Fetch(context.Background()))
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 1, b.fetchCalls(), "unauthenticated fetches make no network call")
}

func TestMutateLocalValidationRejects(t *testing.T) {
	b := &backend{items: []int{1}}
	c := newController(t, b, signedIn())
	require.NoError(t, c.Refresh(context.Background()))

	remoteCalled := false
	err := c.Mutate(context.Background(), Mutation[list]{
		Op: "update",
		Local: func(l list) (list, error) {
			return l, errs.Validation("Quantity must be positive")
		},
		Remote: func(ctx context.Context) (*list, error) { remoteCalled = true; return nil, nil },
	})
	assert.True(t, errs.Is(err, errs.InvalidArgument))
	assert.False(t, remoteCalled)
	assert.Equal(t, "Quantity must be positive", c.Snapshot().Error)
	assert.Equal(t, []int{1}, c.Snapshot().Value.Items)
}

func TestMutatePayloadAndRefetch(t *testing.T) {
	b := &backend{items: []int{1}}
	c := newController(t, b, signedIn())
	require.NoError(t, c.Refresh(context.Background()))

	err := c.Mutate(context.Background(), Mutation[list]{
		Op:     "replace",
		Local:  appendItem(2),
		Remote: func(ctx context.Context) (*list, error) { return &list{Items: []int{7}}, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{7}, c.Snapshot().Value.Items)

	b.mu.Lock()
	b.items = []int{1, 2, 3}
	b.mu.Unlock()
	err = c.Mutate(context.Background(), Mutation[list]{
		Op:      "add",
		Local:   appendItem(3),
		Remote:  func(ctx context.Context) (*list, error) { return nil, nil },
		Refetch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, c.Snapshot().Value.Items)
	assert.Equal(t, 2, b.fetchCalls())
}

func TestFetchJoinsInFlight(t *testing.T) {
	b := &backend{items: []int{4}, entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := newController(t, b, signedIn())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Fetch(context.Background()))
	}()
	<-b.entered

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Fetch(context.Background()))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(b.release)
	wg.Wait()

	assert.Equal(t, 1, b.fetchCalls())
	assert.Equal(t, []int{4}, c.Snapshot().Value.Items)
	assert.False(t, c.Snapshot().Loading)
}

func TestFetchCooldown(t *testing.T) {
	b := &backend{items: []int{1}}
	c := newController(t, b, signedIn())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Fetch(context.Background()))
	require.NoError(t, c.Fetch(context.Background()))
	assert.Equal(t, 1, b.fetchCalls(), "second fetch within the cooldown is suppressed")

	now = now.Add(500 * time.Millisecond)
	require.NoError(t, c.Fetch(context.Background()))
	assert.Equal(t, 1, b.fetchCalls())

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 2, b.fetchCalls(), "forced refresh ignores the cooldown")

	now = now.Add(2 * time.Second)
	require.NoError(t, c.Fetch(context.Background()))
	assert.Equal(t, 3, b.fetchCalls())
}

func TestFirstFetchAfterResetNotSuppressed(t *testing.T) {
	b := &backend{items: []int{1}}
	c := newController(t, b, signedIn())

	require.NoError(t, c.Fetch(context.Background()))
	c.Reset()
	assert.Empty(t, c.Snapshot().Value.Items)

	require.NoError(t, c.Fetch(context.Background()))
	assert.Equal(t, 2, b.fetchCalls())
	assert.Equal(t, []int{1}, c.Snapshot().Value.Items)
}

func TestResetDropsStaleResponse(t *testing.T) {
	b := &backend{items: []int{1, 2}, entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := newController(t, b, signedIn())

	done := make(chan error, 1)
	go func() { done <- c.Fetch(context.Background()) }()
	<-b.entered

	genBefore := c.Snapshot().Generation
	c.Reset()
	close(b.release)
	require.NoError(t, <-done)

	st := c.Snapshot()
	assert.Empty(t, st.Value.Items, "response of the previous session must be discarded")
	assert.Equal(t, genBefore+1, st.Generation)
}

func TestMalformedPayloadIsEmpty(t *testing.T) {
	b := &backend{items: []int{1}}
	c := newController(t, b, signedIn())
	require.NoError(t, c.Refresh(context.Background()))

	b.mu.Lock()
	b.err = errs.New(errs.MalformedResponse, "")
	b.mu.Unlock()

	require.NoError(t, c.Refresh(context.Background()))
	st := c.Snapshot()
	assert.Empty(t, st.Value.Items)
	assert.Empty(t, st.Error)
}

func TestFetchFailureKeepsState(t *testing.T) {
	b := &backend{items: []int{1}}
	c := newController(t, b, signedIn())
	require.NoError(t, c.Refresh(context.Background()))

	b.mu.Lock()
	b.err = errors.New("connection reset")
	b.mu.Unlock()

	require.Error(t, c.Refresh(context.Background()))
	st := c.Snapshot()
	assert.Equal(t, []int{1}, st.Value.Items)
	assert.Equal(t, "Failed to load test", st.Error)
}

func TestSubscribersReceiveSnapshots(t *testing.T) {
	hub := notify.NewHub(logger.Nop())
	defer hub.Close()
	b := &backend{items: []int{1}}
	c := New(Options[list]{
		Name:   "test",
		Fetch:  b.fetch,
		Clone:  cloneList,
		Auth:   signedIn(),
		Hub:    hub,
		Logger: logger.Nop(),
	})
	defer c.Close()

	var mu sync.Mutex
	var got [][]int
	unsubscribe := c.Subscribe(func(st State[list]) {
		mu.Lock()
		got = append(got, st.Value.Items)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, c.Mutate(context.Background(), Mutation[list]{
		Op:     "add",
		Local:  appendItem(2),
		Remote: func(ctx context.Context) (*list, error) { return nil, nil },
	}))
	require.NoError(t, hub.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	assert.Equal(t, []int{2}, got[0], "optimistic state is published first")
	assert.Equal(t, []int{2}, got[len(got)-1])
}

func TestErrorClearsAfterTTL(t *testing.T) {
	hub := notify.NewHub(logger.Nop())
	defer hub.Close()
	c := New(Options[list]{
		Name:     "test",
		Fetch:    (&backend{}).fetch,
		Clone:    cloneList,
		Auth:     &authFlag{},
		ErrorTTL: 20 * time.Millisecond,
		Hub:      hub,
		Logger:   logger.Nop(),
	})
	defer c.Close()

	_ = c.Mutate(context.Background(), Mutation[list]{
		Op:     "add",
		Remote: func(ctx context.Context) (*list, error) { return nil, nil },
	})
	assert.NotEmpty(t, c.Snapshot().Error)
	assert.Eventually(t, func() bool { return c.Snapshot().Error == "" }, time.Second, 5*time.Millisecond)
}
