package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/edgeupdate/agent/internal/agent/platform"
)

func TestPeriodicFiringRespectsInterval(t *testing.T) {
	s := New(nil, nil)
	var count int32
	s.Register("update", 20*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	got := atomic.LoadInt32(&count)
	assert.GreaterOrEqual(t, got, int32(2))
	assert.LessOrEqual(t, got, int32(6))
}

func TestNegativeIntervalDisablesPeriodicFiring(t *testing.T) {
	s := New(nil, nil)
	var count int32
	s.Register("update", -1*time.Second, func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestTriggerFiresDisabledUnit(t *testing.T) {
	s := New(nil, nil)
	ran := make(chan struct{}, 1)
	s.Register("update", -1, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	s.Trigger("update")

	select {
	case <-ran:
	case <-time.After(150 * time.Millisecond):
		t.Fatal("triggered unit never ran")
	}
	cancel()
	wg.Wait()
}

func TestTriggerUnknownUnitIsNoop(t *testing.T) {
	s := New(nil, nil)
	s.Register("update", -1, func(ctx context.Context) error { return nil })
	assert.NotPanics(t, func() { s.Trigger("does-not-exist") })
}

func TestWorkUnitsAreSerialized(t *testing.T) {
	s := New(nil, nil)
	var active int32
	var sawOverlap int32

	makeUnit := func() func(ctx context.Context) error {
		return func(ctx context.Context) error {
			if atomic.AddInt32(&active, 1) > 1 {
				atomic.StoreInt32(&sawOverlap, 1)
			}
			time.Sleep(15 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		}
	}
	s.Register("auth", 10*time.Millisecond, makeUnit())
	s.Register("update", 10*time.Millisecond, makeUnit())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, int32(0), atomic.LoadInt32(&sawOverlap))
}

func TestRunWrapsExecutionWithPlatformNetworkHooks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	hooks := platform.NewMockHooks(ctrl)
	ranCh := make(chan struct{}, 1)
	gomock.InOrder(
		hooks.EXPECT().NetworkConnect(gomock.Any()).Return(nil),
		hooks.EXPECT().NetworkRelease(gomock.Any()),
	)

	s := New(hooks, nil)
	s.Register("update", -1, func(ctx context.Context) error {
		ranCh <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	time.Sleep(5 * time.Millisecond)
	s.Trigger("update")
	select {
	case <-ranCh:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("unit never ran")
	}
	cancel()
	wg.Wait()
}

func TestRunSkipsExecuteWhenNetworkConnectFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	hooks := platform.NewMockHooks(ctrl)
	hooks.EXPECT().NetworkConnect(gomock.Any()).Return(errors.New("modem offline"))

	s := New(hooks, nil)
	var executed int32
	s.Register("update", -1, func(ctx context.Context) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	time.Sleep(5 * time.Millisecond)
	s.Trigger("update")
	<-ctx.Done()
	wg.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&executed))
}

func TestHistoryRecordsOutcomes(t *testing.T) {
	s := New(nil, nil)
	ran := make(chan struct{}, 1)
	s.Register("update", -1, func(ctx context.Context) error {
		ran <- struct{}{}
		return errors.New("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	time.Sleep(5 * time.Millisecond)
	s.Trigger("update")
	select {
	case <-ran:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("unit never ran")
	}
	cancel()
	wg.Wait()

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, "update", history[0].Unit)
	assert.EqualError(t, history[0].Err, "boom")
}
