package thing

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action instance lifecycle states.
const (
	StatusCreated   = "created"
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// BaseAction is a ready-to-use Action implementation covering the common
// invocation lifecycle: created on PerformAction, pending once started,
// then completed, error or cancelled. Each status change is announced to
// the owning Thing's global subscribers.
//
// The actual work is supplied as a runner hook; cancellation side effects
// as an onCancel hook. Both are optional.
type BaseAction struct {
	thing *Thing // non-owning back-reference
	id    string
	name  string
	input any
	href  string

	mu            sync.Mutex
	hrefPrefix    string
	status        string
	timeRequested string
	timeCompleted string
	runner        func() error
	onCancel      func()
}

// NewBaseAction creates an action instance for one invocation of name.
// The instance assigns its own id.
func NewBaseAction(t *Thing, name string, input any) *BaseAction {
	id := uuid.NewString()
	return &BaseAction{
		thing:         t,
		id:            id,
		name:          name,
		input:         input,
		href:          "/actions/" + name + "/" + id,
		status:        StatusCreated,
		timeRequested: time.Now().UTC().Format(time.RFC3339),
	}
}

// SetRunner sets the hook executed by Start. A nil runner completes
// immediately.
func (a *BaseAction) SetRunner(f func() error) {
	a.mu.Lock()
	a.runner = f
	a.mu.Unlock()
}

// SetOnCancel sets the hook invoked by Cancel.
func (a *BaseAction) SetOnCancel(f func()) {
	a.mu.Lock()
	a.onCancel = f
	a.mu.Unlock()
}

// ID returns the instance identifier.
func (a *BaseAction) ID() string { return a.id }

// Name returns the action type name.
func (a *BaseAction) Name() string { return a.name }

// Input returns the invocation input as passed to PerformAction.
func (a *BaseAction) Input() any { return a.input }

// Status returns the current lifecycle state.
func (a *BaseAction) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Start runs the action: it moves to pending, executes the runner, and
// finishes as completed or error. Blocking; callers that want
// asynchronous execution run it in a goroutine.
func (a *BaseAction) Start() {
	a.setStatus(StatusPending)

	a.mu.Lock()
	runner := a.runner
	a.mu.Unlock()

	status := StatusCompleted
	if runner != nil {
		if err := runner(); err != nil {
			a.thing.getLogger().Warn("action failed", "action", a.name, "id", a.id, "error", err)
			status = StatusError
		}
	}
	a.finish(status)
}

// finish records the terminal state and announces it. A cancellation that
// landed while the runner was executing wins: the runner's outcome is
// discarded and no further notification goes out.
func (a *BaseAction) finish(status string) {
	a.mu.Lock()
	if a.status == StatusCancelled {
		a.mu.Unlock()
		return
	}
	a.status = status
	a.timeCompleted = time.Now().UTC().Format(time.RFC3339)
	a.mu.Unlock()

	a.thing.ActionNotify(a)
}

// Cancel stops the instance. The cancelled state is recorded before the
// onCancel hook runs, so a runner the hook unblocks cannot report the
// invocation completed.
func (a *BaseAction) Cancel() {
	a.mu.Lock()
	a.status = StatusCancelled
	a.timeCompleted = time.Now().UTC().Format(time.RFC3339)
	onCancel := a.onCancel
	a.mu.Unlock()

	if onCancel != nil {
		onCancel()
	}

	a.thing.ActionNotify(a)
}

// SetHrefPrefix updates the base path for the instance's href.
func (a *BaseAction) SetHrefPrefix(prefix string) {
	a.mu.Lock()
	a.hrefPrefix = prefix
	a.mu.Unlock()
}

// Description returns the instance description keyed by action name:
// href, status, request/completion timestamps, and the input if any.
func (a *BaseAction) Description() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	inner := map[string]any{
		"href":          a.hrefPrefix + a.href,
		"status":        a.status,
		"timeRequested": a.timeRequested,
	}
	if a.input != nil {
		inner["input"] = a.input
	}
	if a.timeCompleted != "" {
		inner["timeCompleted"] = a.timeCompleted
	}
	return map[string]any{a.name: inner}
}

// setStatus records the state transition and announces it.
func (a *BaseAction) setStatus(status string) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()

	a.thing.ActionNotify(a)
}
