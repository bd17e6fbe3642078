package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{Workers: 2, Threads: 4, RequestTimeout: 30 * time.Second, Backlog: 16}
}

func newTestSupervisor(t *testing.T, cfg Config) *Supervisor {
	t.Helper()
	s, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	s.watchTick = 10 * time.Millisecond
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"Defaults", Config{Workers: 2, Threads: 4, RequestTimeout: 1800 * time.Second, Backlog: 128}, false},
		{"ZeroWorkers", Config{Workers: 0, Threads: 4, RequestTimeout: time.Second}, true},
		{"ZeroThreads", Config{Workers: 2, Threads: 0, RequestTimeout: time.Second}, true},
		{"ZeroTimeout", Config{Workers: 2, Threads: 4}, true},
		{"NegativeBacklog", Config{Workers: 2, Threads: 4, RequestTimeout: time.Second, Backlog: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaxConcurrency(t *testing.T) {
	assert.Equal(t, 8, testConfig().MaxConcurrency())
}

func TestStartSpawnsConfiguredWorkers(t *testing.T) {
	s := newTestSupervisor(t, testConfig())
	assert.Equal(t, 2, s.WorkerCount())
}

func TestDispatchReturnsJobResultVerbatim(t *testing.T) {
	s := newTestSupervisor(t, testConfig())

	require.NoError(t, s.Dispatch(context.Background(), func(ctx context.Context) error {
		return nil
	}))

	wantErr := errors.New("handler says no")
	err := s.Dispatch(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	assert.Equal(t, wantErr, err)
}

// With 2 workers x 4 threads, 8 long-running requests run in parallel and a
// 9th queues until a slot frees up.
func TestConcurrencyBound(t *testing.T) {
	s := newTestSupervisor(t, testConfig())

	var running atomic.Int32
	release := make(chan struct{})
	results := make(chan error, 9)

	blockingJob := func(ctx context.Context) error {
		running.Add(1)
		defer running.Add(-1)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i := 0; i < 8; i++ {
		go func() { results <- s.Dispatch(context.Background(), blockingJob) }()
	}
	require.Eventually(t, func() bool { return running.Load() == 8 },
		2*time.Second, 5*time.Millisecond, "all 8 requests should be admitted")

	var ninthStarted atomic.Bool
	go func() {
		results <- s.Dispatch(context.Background(), func(ctx context.Context) error {
			ninthStarted.Store(true)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ninthStarted.Load(), "9th request must queue while all slots are busy")
	assert.Equal(t, int32(8), running.Load())

	close(release)
	for i := 0; i < 9; i++ {
		assert.NoError(t, <-results)
	}
	assert.True(t, ninthStarted.Load())
}

func TestTimeoutKillsAndReplacesWorker(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 60 * time.Millisecond
	s := newTestSupervisor(t, cfg)

	stuck := make(chan struct{})
	defer close(stuck)

	err := s.Dispatch(context.Background(), func(ctx context.Context) error {
		<-stuck // never honors cancellation, like a runaway handler
		return nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, s.WorkerCount(), "capacity must be restored")

	// Subsequent requests are served by the replacement.
	assert.NoError(t, s.Dispatch(context.Background(), func(ctx context.Context) error {
		return nil
	}))
}

// A handler that honors cancellation returns its own context error in the
// same instant the worker dies; the caller must still see the timeout, not
// the handler's error, so the connection gets dropped instead of answered.
func TestTimeoutWinsOverHandlerCancellationError(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	s := newTestSupervisor(t, cfg)

	err := s.Dispatch(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestSiblingRequestsAbortedOnWorkerKill(t *testing.T) {
	cfg := Config{Workers: 1, Threads: 2, RequestTimeout: 60 * time.Millisecond, Backlog: 4}
	s := newTestSupervisor(t, cfg)

	stuck := make(chan struct{})
	defer close(stuck)

	first := make(chan error, 1)
	go func() {
		first <- s.Dispatch(context.Background(), func(ctx context.Context) error {
			<-stuck
			return nil
		})
	}()

	// Start the sibling well after the first so only the first expires.
	time.Sleep(30 * time.Millisecond)
	sibling := make(chan error, 1)
	go func() {
		sibling <- s.Dispatch(context.Background(), func(ctx context.Context) error {
			<-stuck
			return nil
		})
	}()

	select {
	case err := <-first:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("timed-out request never reported")
	}
	select {
	case err := <-sibling:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("sibling request never reported")
	}
	assert.Equal(t, 1, s.WorkerCount())
}

func TestHandlerPanicReplacesWorker(t *testing.T) {
	s := newTestSupervisor(t, testConfig())

	err := s.Dispatch(context.Background(), func(ctx context.Context) error {
		panic("handler blew up")
	})
	assert.ErrorIs(t, err, ErrCrashed)
	assert.Equal(t, 2, s.WorkerCount())

	assert.NoError(t, s.Dispatch(context.Background(), func(ctx context.Context) error {
		return nil
	}))
}

func TestDispatchAfterShutdown(t *testing.T) {
	s, err := New(testConfig(), zap.NewNop())
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	err = s.Dispatch(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestDispatchCallerGivesUpWhileQueued(t *testing.T) {
	cfg := Config{Workers: 1, Threads: 1, RequestTimeout: 30 * time.Second, Backlog: 0}
	s := newTestSupervisor(t, cfg)

	release := make(chan struct{})
	defer close(release)
	occupied := make(chan struct{})
	go func() {
		_ = s.Dispatch(context.Background(), func(ctx context.Context) error {
			close(occupied)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		})
	}()
	<-occupied

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Dispatch(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
