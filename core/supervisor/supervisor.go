package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTimeout is returned to a caller whose request exceeded the
	// configured request timeout. The owning worker group has been killed
	// and replaced.
	ErrTimeout = errors.New("supervisor: request timed out, worker killed")
	// ErrAborted is returned to callers whose requests were in flight on a
	// worker group that was killed because of a sibling request.
	ErrAborted = errors.New("supervisor: request aborted, worker killed")
	// ErrCrashed is returned when the handler panicked. The owning worker
	// group is replaced.
	ErrCrashed = errors.New("supervisor: worker crashed")
	// ErrShuttingDown is returned for requests admitted after shutdown began.
	ErrShuttingDown = errors.New("supervisor: shutting down")
)

// Job is the unit of work dispatched to a handler slot. The context is
// canceled when the owning worker group is killed; blocking work inside the
// job must honor it.
type Job func(ctx context.Context) error

type task struct {
	ctx     context.Context
	job     Job
	result  chan error
	claimed atomic.Bool
}

// claim gives a queued task exactly one owner: the thread that will run it,
// or a dispatcher bailing out during shutdown. A task whose dispatcher won
// the claim must never start.
func (t *task) claim() bool {
	return t.claimed.CompareAndSwap(false, true)
}

// slot tracks the request a handler goroutine is currently processing.
type slot struct {
	mu        sync.Mutex
	startedAt time.Time
	timedOut  bool
}

func (s *slot) begin(now time.Time) {
	s.mu.Lock()
	s.startedAt = now
	s.timedOut = false
	s.mu.Unlock()
}

func (s *slot) clear() {
	s.mu.Lock()
	s.startedAt = time.Time{}
	s.timedOut = false
	s.mu.Unlock()
}

// expire marks the slot as timed out if its request has been running longer
// than timeout. Returns true when the mark was set.
func (s *slot) expire(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() || s.timedOut {
		return false
	}
	if now.Sub(s.startedAt) <= timeout {
		return false
	}
	s.timedOut = true
	return true
}

func (s *slot) wasTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timedOut
}

// worker is one worker group: a cancelable context shared by a fixed number
// of handler slots. Killing the group cancels every request running on it.
type worker struct {
	id     int
	ctx    context.Context
	cancel context.CancelFunc
	slots  []*slot
}

// Supervisor owns a fixed pool of worker groups and dispatches requests to
// their handler slots. At most Workers*Threads requests run concurrently;
// the rest wait in the backlog queue.
type Supervisor struct {
	cfg    Config
	logger *zap.Logger
	queue  chan *task

	mu      sync.Mutex
	workers map[int]*worker
	nextID  int
	started bool
	closed  bool

	stop chan struct{}
	wg   sync.WaitGroup

	// watchTick controls how often running requests are checked against the
	// timeout. Tests shorten it.
	watchTick time.Duration
}

// New creates a supervisor from a validated configuration.
func New(cfg Config, logger *zap.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:       cfg,
		logger:    logger,
		queue:     make(chan *task, cfg.Backlog),
		workers:   make(map[int]*worker),
		stop:      make(chan struct{}),
		watchTick: time.Second,
	}, nil
}

// Start spawns the worker groups and the timeout watchdog.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.spawnLocked()
	}
	s.wg.Add(1)
	go s.watchdog()
	s.logger.Info("Supervisor started",
		zap.Int("workers", s.cfg.Workers),
		zap.Int("threads", s.cfg.Threads),
		zap.Duration("request_timeout", s.cfg.RequestTimeout))
}

// spawnLocked creates one worker group and its handler goroutines.
// Callers must hold s.mu.
func (s *Supervisor) spawnLocked() *worker {
	s.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{id: s.nextID, ctx: ctx, cancel: cancel}
	for i := 0; i < s.cfg.Threads; i++ {
		sl := &slot{}
		w.slots = append(w.slots, sl)
		s.wg.Add(1)
		go s.runThread(w, sl)
	}
	s.workers[w.id] = w
	return w
}

// runThread pulls tasks off the shared queue and runs them until the worker
// group is killed or shutdown begins.
func (s *Supervisor) runThread(w *worker, sl *slot) {
	defer s.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-s.stop:
			return
		case t := <-s.queue:
			if !t.claim() {
				// Dispatcher bailed out during shutdown.
				continue
			}
			if t.ctx.Err() != nil {
				// Caller gave up while queued.
				t.result <- t.ctx.Err()
				continue
			}
			if !s.runTask(w, sl, t) {
				return
			}
		}
	}
}

// runTask executes one task on this slot. Returns false when the thread must
// exit because its worker group was killed.
func (s *Supervisor) runTask(w *worker, sl *slot, t *task) bool {
	sl.begin(time.Now())
	done := make(chan error, 1)
	go func() {
		done <- runJob(w.ctx, t.job)
	}()

	select {
	case err := <-done:
		timedOut := sl.wasTimedOut()
		sl.clear()
		switch {
		case err != nil && errors.Is(err, ErrCrashed):
			// Handler panic is a worker crash: replace the whole group.
			s.kill(w, "crash")
		case timedOut:
			// The watchdog killed the group for this request; report the
			// timeout even when the handler's return raced the kill.
			err = ErrTimeout
		case w.ctx.Err() != nil && err != nil:
			// The group died under a finishing job; report the kill, not
			// the handler's cancellation error.
			err = ErrAborted
		}
		t.result <- err
		return w.ctx.Err() == nil
	case <-w.ctx.Done():
		// The group was killed. The job goroutine is abandoned; it sees the
		// canceled context on its next blocking call.
		if sl.wasTimedOut() {
			t.result <- ErrTimeout
		} else {
			t.result <- ErrAborted
		}
		sl.clear()
		return false
	}
}

func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCrashed, r)
		}
	}()
	return job(ctx)
}

// watchdog periodically scans every handler slot and kills worker groups
// whose request exceeded the timeout.
func (s *Supervisor) watchdog() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.watchTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.reap(now)
		}
	}
}

func (s *Supervisor) reap(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		expired := false
		for _, sl := range w.slots {
			if sl.expire(now, s.cfg.RequestTimeout) {
				expired = true
			}
		}
		if expired {
			s.killLocked(w, "timeout")
		}
	}
}

// kill terminates a worker group and spawns a replacement so capacity is
// restored. Safe to call for an already-replaced worker.
func (s *Supervisor) kill(w *worker, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked(w, reason)
}

func (s *Supervisor) killLocked(w *worker, reason string) {
	if _, ok := s.workers[w.id]; !ok {
		return
	}
	delete(s.workers, w.id)
	w.cancel()
	if s.closed {
		return
	}
	repl := s.spawnLocked()
	s.logger.Warn("Worker killed and replaced",
		zap.Int("worker", w.id),
		zap.Int("replacement", repl.id),
		zap.String("reason", reason))
}

// Dispatch submits a job and blocks until it finishes, the caller's context
// ends, or the supervisor shuts down.
func (s *Supervisor) Dispatch(ctx context.Context, job Job) error {
	if job == nil {
		return errors.New("supervisor: nil job")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t := &task{ctx: ctx, job: job, result: make(chan error, 1)}

	select {
	case s.queue <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return ErrShuttingDown
	}

	select {
	case err := <-t.result:
		return err
	case <-s.stop:
		// Give a drained task a chance to report before bailing out.
		select {
		case err := <-t.result:
			return err
		case <-time.After(s.watchTick):
			if t.claim() {
				// No thread picked it up; now none ever will.
				return ErrShuttingDown
			}
			// A thread owns it; wait for the verdict so the job cannot
			// outlive this call.
			return <-t.result
		}
	}
}

// Shutdown stops accepting work, waits for in-flight requests up to the
// context deadline, then cancels whatever is left.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	for id, w := range s.workers {
		w.cancel()
		delete(s.workers, id)
	}
	s.mu.Unlock()

	// Fail anything still sitting in the backlog.
	for {
		select {
		case t := <-s.queue:
			if t.claim() {
				t.result <- ErrShuttingDown
			}
		default:
			s.logger.Info("Supervisor stopped")
			return err
		}
	}
}

// WorkerCount reports how many worker groups are alive.
func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
