package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/hr-approval/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func created() *event.Event {
	return event.NewEvent(event.TypeInstanceCreated, 1, nil)
}

func noop(context.Context, *event.Event) error { return nil }

func TestSubscribe(t *testing.T) {
	t.Run("runs handlers in registration order", func(t *testing.T) {
		d := NewDispatcher()
		var order []int

		d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
			order = append(order, 1)
			return nil
		})
		d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
			order = append(order, 2)
			return nil
		})

		require.NoError(t, d.Dispatch(context.Background(), created()))
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("logs named registration", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.SubscribeNamed(event.TypeInstanceCreated, "audit", noop)

		assert.True(t, logger.HasInfo("Handler registered"))
		handlers := d.ListHandlers(event.TypeInstanceCreated)
		require.Len(t, handlers, 1)
		assert.Equal(t, "audit", handlers[0].Name)
		assert.Nil(t, handlers[0].Handler)
	})

	t.Run("ignores other event types", func(t *testing.T) {
		d := NewDispatcher()
		called := false
		d.Subscribe(event.TypeInstanceApproved, func(context.Context, *event.Event) error {
			called = true
			return nil
		})

		require.NoError(t, d.Dispatch(context.Background(), created()))
		assert.False(t, called)
	})
}

func TestSubscribeAll(t *testing.T) {
	d := NewDispatcher()
	var seen []event.Type

	d.SubscribeNamed(event.TypeStepActivated, "typed", func(_ context.Context, evt *event.Event) error {
		seen = append(seen, "typed:"+evt.Type)
		return nil
	})
	d.SubscribeAll("wildcard", func(_ context.Context, evt *event.Event) error {
		seen = append(seen, evt.Type)
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeStepActivated, 1, nil)))
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeInstanceRejected, 1, nil)))

	assert.Equal(t, []event.Type{"typed:step.activated", event.TypeStepActivated, event.TypeInstanceRejected}, seen)
	assert.Len(t, d.ListHandlers(event.TypeInstanceCancelled), 1)

	d.Unsubscribe("", "wildcard")
	assert.Empty(t, d.ListHandlers(event.TypeInstanceCancelled))
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.SubscribeNamed(event.TypeInstanceCreated, "first", func(context.Context, *event.Event) error {
		calls = append(calls, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeInstanceCreated, "second", func(context.Context, *event.Event) error {
		calls = append(calls, "second")
		return nil
	})

	d.Unsubscribe(event.TypeInstanceCreated, "first")

	require.NoError(t, d.Dispatch(context.Background(), created()))
	assert.Equal(t, []string{"second"}, calls)
}

func TestDispatch(t *testing.T) {
	t.Run("stops at first error", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("handler error")
		called := false

		d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), created())
		assert.ErrorIs(t, err, expectedErr)
		assert.False(t, called)
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
			panic("boom")
		})

		assert.Error(t, d.Dispatch(context.Background(), created()))
		assert.Greater(t, logger.ErrorCount(), 0)
	})

	t.Run("fails when closed", func(t *testing.T) {
		d := NewDispatcher()
		require.NoError(t, d.Close())
		assert.Error(t, d.Dispatch(context.Background(), created()))
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("close waits for handlers", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		for i := 0; i < 2; i++ {
			d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
				time.Sleep(10 * time.Millisecond)
				called.Add(1)
				return nil
			})
		}

		d.DispatchAsync(context.Background(), created())
		require.NoError(t, d.Close())
		assert.Equal(t, int32(2), called.Load())
	})

	t.Run("errors do not stop other handlers", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), created())
		require.NoError(t, d.Close())
		assert.Equal(t, int32(1), called.Load())
		assert.Greater(t, logger.ErrorCount(), 0)
	})

	t.Run("drops events after close", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32
		d.Subscribe(event.TypeInstanceCreated, func(context.Context, *event.Event) error {
			called.Add(1)
			return nil
		})

		require.NoError(t, d.Close())
		d.DispatchAsync(context.Background(), created())
		time.Sleep(20 * time.Millisecond)

		assert.Equal(t, int32(0), called.Load())
		assert.Greater(t, logger.ErrorCount(), 0)
		assert.Error(t, d.Close(), "double close")
	})
}

func TestClose_RacingDispatchAsync(t *testing.T) {
	d := NewDispatcher(WithLogger(&mockLogger{}))
	var started, finished atomic.Int32
	d.SubscribeAll("slow", func(context.Context, *event.Event) error {
		started.Add(1)
		time.Sleep(time.Millisecond)
		finished.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				d.DispatchAsync(context.Background(), created())
			}
		}()
	}

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, d.Close())

	// every accepted handler has completed by the time Close returns
	assert.Equal(t, started.Load(), finished.Load())
	wg.Wait()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, started.Load(), finished.Load())
}

func TestNotify_DetachesFromCallerCancellation(t *testing.T) {
	d := NewDispatcher()
	var ctxErr atomic.Value

	d.SubscribeAll("probe", func(ctx context.Context, _ *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		ctxErr.Store(fmt.Sprint(ctx.Err()))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx, created())
	cancel()

	require.NoError(t, d.Close())
	assert.Equal(t, "<nil>", ctxErr.Load())
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var called atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeInstanceCreated, fmt.Sprintf("handler-%d", id), func(context.Context, *event.Event) error {
				called.Add(1)
				return nil
			})
		}(i)
	}
	wg.Wait()
	require.Len(t, d.ListHandlers(event.TypeInstanceCreated), 10)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), created())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), called.Load())
}
