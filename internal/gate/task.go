package gate

import (
	"context"
	"sync"
	"time"
)

// TaskState tracks an enhancement task through its lifecycle.
type TaskState string

const (
	TaskIdle      TaskState = "idle"
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Task is an analyzer-owned handle for a background enhancement run. At most
// one run is in flight at a time; a failed or timed-out run never disturbs
// the already-delivered rule result. Cancel aborts an in-flight run on
// session teardown.
type Task struct {
	mu      sync.Mutex
	state   TaskState
	cancel  context.CancelFunc
	timeout time.Duration
}

// NewTask creates an idle task whose runs are bounded by timeout.
func NewTask(timeout time.Duration) *Task {
	return &Task{state: TaskIdle, timeout: timeout}
}

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start launches fn on a new goroutine with a timeout-bounded context.
// It returns false without launching when a run is already in flight.
// done, when non-nil, is invoked after the state transition to completed
// or failed.
func (t *Task) Start(fn func(ctx context.Context) error, done func(err error)) bool {
	t.mu.Lock()
	if t.state == TaskPending || t.state == TaskRunning {
		t.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	t.state = TaskPending
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		defer cancel()

		t.mu.Lock()
		t.state = TaskRunning
		t.mu.Unlock()

		err := fn(ctx)

		t.mu.Lock()
		if err != nil {
			t.state = TaskFailed
		} else {
			t.state = TaskCompleted
		}
		t.cancel = nil
		t.mu.Unlock()

		if done != nil {
			done(err)
		}
	}()
	return true
}

// Cancel aborts an in-flight run, if any. Safe to call at any state.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
