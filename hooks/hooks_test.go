package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEmitOrdering tests priority-then-insertion dispatch order
func TestEmitOrdering(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	record := func(name string) ActionFunc {
		return func(ctx context.Context, event string, payload Payload) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	r.On("test", record("normal-1"), Options{Priority: PriorityNormal})
	r.On("test", record("critical"), Options{Priority: PriorityCritical})
	r.On("test", record("normal-2"), Options{Priority: PriorityNormal})
	r.On("test", record("low"), Options{Priority: PriorityLow})
	r.On("test", record("high"), Options{Priority: PriorityHigh})

	// sequential dispatch exposes the full ordering
	result := r.Emit(ctx, "test", nil, EmitOptions{Strategy: StrategyStop})
	require.NoError(t, result.Err())
	assert.Equal(t, []string{"critical", "high", "normal-1", "normal-2", "low"}, order)
	assert.Equal(t, 5, result.Executed)
}

// TestEmitContinueRunsAll tests that continue strategy invokes every handler
// exactly once and collects errors without raising
func TestEmitContinueRunsAll(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var calls int32
	for i := 0; i < 5; i++ {
		fail := i%2 == 0
		r.On("evt", func(ctx context.Context, event string, payload Payload) error {
			atomic.AddInt32(&calls, 1)
			if fail {
				return errors.New("handler failed")
			}
			return nil
		}, Options{})
	}

	result := r.Emit(ctx, "evt", nil, EmitOptions{})
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, 5, result.Executed)
	assert.Len(t, result.Errors, 3)
}

// TestEmitStopAbortsAtFirstError tests stop strategy short-circuit
func TestEmitStopAbortsAtFirstError(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	boom := errors.New("boom")
	var afterRan bool

	r.On("evt", func(ctx context.Context, event string, payload Payload) error {
		return boom
	}, Options{Priority: PriorityHigh})
	r.On("evt", func(ctx context.Context, event string, payload Payload) error {
		afterRan = true
		return nil
	}, Options{Priority: PriorityLow})

	result := r.Emit(ctx, "evt", nil, EmitOptions{Strategy: StrategyStop})
	assert.ErrorIs(t, result.Err(), boom)
	assert.False(t, afterRan)
	assert.Equal(t, 1, result.Executed)
}

// TestOnceRemovedAfterDispatch tests that once-handlers run exactly once and
// are pruned only after the whole parallel dispatch completes
func TestOnceRemovedAfterDispatch(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var calls int32
	r.On("evt", func(ctx context.Context, event string, payload Payload) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, Options{Once: true})
	r.On("evt", func(ctx context.Context, event string, payload Payload) error {
		return nil
	}, Options{})

	r.Emit(ctx, "evt", nil, EmitOptions{})
	r.Emit(ctx, "evt", nil, EmitOptions{})

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	actions, _ := r.HandlerCount("evt")
	assert.Equal(t, 1, actions)
}

// TestFilterThreadsData tests h3(h2(h1(input))) chaining
func TestFilterThreadsData(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.AddFilter("evt", func(ctx context.Context, event string, data Payload) (Payload, error) {
		out := data.Clone()
		out["h1"] = true
		return out, nil
	}, Options{Priority: PriorityHigh})
	r.AddFilter("evt", func(ctx context.Context, event string, data Payload) (Payload, error) {
		out := data.Clone()
		out["title"] = out["title"].(string) + " | Site"
		return out, nil
	}, Options{})
	r.AddFilter("evt", func(ctx context.Context, event string, data Payload) (Payload, error) {
		out := data.Clone()
		out["h3"] = true
		return out, nil
	}, Options{Priority: PriorityLow})

	out, result := r.Filter(ctx, "evt", Payload{"title": "Hi"}, EmitOptions{})
	require.NoError(t, result.Err())
	assert.Equal(t, "Hi | Site", out["title"])
	assert.Equal(t, true, out["h1"])
	assert.Equal(t, true, out["h3"])
	assert.Equal(t, 3, result.Executed)
}

// TestFilterContinueSkipsFailingHandler tests that a failing filter is
// skipped with its input preserved
func TestFilterContinueSkipsFailingHandler(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.AddFilter("evt", func(ctx context.Context, event string, data Payload) (Payload, error) {
		out := data.Clone()
		out["first"] = true
		return out, nil
	}, Options{Priority: PriorityHigh})
	r.AddFilter("evt", func(ctx context.Context, event string, data Payload) (Payload, error) {
		return Payload{"poisoned": true}, errors.New("bad filter")
	}, Options{})
	r.AddFilter("evt", func(ctx context.Context, event string, data Payload) (Payload, error) {
		out := data.Clone()
		out["last"] = true
		return out, nil
	}, Options{Priority: PriorityLow})

	out, result := r.Filter(ctx, "evt", Payload{}, EmitOptions{})
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, true, out["first"])
	assert.Equal(t, true, out["last"])
	assert.NotContains(t, out, "poisoned")
}

// TestFilterStopAborts tests stop strategy for filter chains
func TestFilterStopAborts(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	boom := errors.New("veto")
	r.AddFilter("evt", func(ctx context.Context, event string, data Payload) (Payload, error) {
		return nil, boom
	}, Options{Priority: PriorityHigh})
	var lastRan bool
	r.AddFilter("evt", func(ctx context.Context, event string, data Payload) (Payload, error) {
		lastRan = true
		return data, nil
	}, Options{})

	out, result := r.Filter(ctx, "evt", Payload{"keep": 1}, EmitOptions{Strategy: StrategyStop})
	assert.ErrorIs(t, result.Err(), boom)
	assert.False(t, lastRan)
	// pre-failure data is what the caller gets back
	assert.Equal(t, 1, out["keep"])
}

// TestUnsubscribeClosure tests that the returned closure removes exactly one
// registration
func TestUnsubscribeClosure(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var calls int32
	fn := func(ctx context.Context, event string, payload Payload) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	off1 := r.On("evt", fn, Options{})
	r.On("evt", fn, Options{})

	off1()
	r.Emit(ctx, "evt", nil, EmitOptions{})
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// calling the closure again is a no-op
	off1()
	actions, _ := r.HandlerCount("evt")
	assert.Equal(t, 1, actions)
}

// TestOffRemovesAllRegistrations tests that Off drops every registration of
// the same callback
func TestOffRemovesAllRegistrations(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var calls int32
	fn := func(ctx context.Context, event string, payload Payload) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	r.On("evt", fn, Options{})
	r.On("evt", fn, Options{Priority: PriorityHigh})
	r.On("evt", fn, Options{Priority: PriorityLow})

	r.Off("evt", fn)
	result := r.Emit(ctx, "evt", nil, EmitOptions{})
	assert.Equal(t, 0, result.Executed)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

// TestClear drops all handlers for every event
func TestClear(t *testing.T) {
	r := NewRegistry()

	r.On("a", func(ctx context.Context, event string, payload Payload) error { return nil }, Options{})
	r.AddFilter("b", func(ctx context.Context, event string, data Payload) (Payload, error) { return data, nil }, Options{})

	r.Clear()
	actions, _ := r.HandlerCount("a")
	_, filters := r.HandlerCount("b")
	assert.Zero(t, actions)
	assert.Zero(t, filters)
}

// TestConcurrentEmitAndRegister tests snapshot dispatch under racing
// registration and teardown
func TestConcurrentEmitAndRegister(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.On("evt", func(ctx context.Context, event string, payload Payload) error { return nil }, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Emit(ctx, "evt", nil, EmitOptions{})
		}()
		go func() {
			defer wg.Done()
			off := r.On("evt", func(ctx context.Context, event string, payload Payload) error { return nil }, Options{Once: true})
			_ = off
		}()
	}
	wg.Wait()
}
