package taskqueue

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/funcqueue/pkg/common/validation"
	"github.com/vnykmshr/funcqueue/pkg/metrics"
	"github.com/vnykmshr/funcqueue/pkg/scheduling/dispatch"
)

const (
	// DefaultParallelLimit is used when Config.ParallelLimit is zero.
	DefaultParallelLimit = 1

	// DefaultName labels logs and metrics when Config.Name is empty.
	DefaultName = "taskqueue"

	module = "taskqueue"
)

// TaskFunc is a unit of asynchronous work. It receives the single-use
// completion handle for its run and must eventually call one of the
// handle's methods. Arguments are bound by closing over them.
type TaskFunc[T any] func(h *Handle[T])

// CompleteFunc receives the outcome of a queue: the first task error with
// nil results, or a nil error with the results in submission order.
type CompleteFunc[T any] func(err error, results []T)

// State is the lifecycle position of a Queue.
type State int

const (
	// StateOpen means no task has been admitted yet.
	StateOpen State = iota
	// StateRunning means at least one task has been admitted.
	StateRunning
	// StateDoneOK means every task finished without error.
	StateDoneOK
	// StateDoneError means a task failed and the queue was abandoned.
	StateDoneError
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateRunning:
		return "running"
	case StateDoneOK:
		return "done-ok"
	case StateDoneError:
		return "done-error"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateDoneOK || s == StateDoneError
}

// Config holds configuration options for creating a Queue.
type Config struct {
	// ParallelLimit is the maximum number of tasks running at once.
	// Zero means DefaultParallelLimit. Negative values are rejected.
	ParallelLimit int

	// Name labels log entries and metrics. Defaults to DefaultName.
	Name string

	// Dispatcher runs task starts, task outcomes and the completion
	// callback on later turns. If nil, the queue creates its own
	// dispatch.Loop. The dispatcher must not run functions inline.
	Dispatcher dispatch.Dispatcher

	// Logger receives queue lifecycle events. If nil, events are discarded.
	Logger *zerolog.Logger

	// Metrics enables Prometheus collection when non-nil.
	Metrics *metrics.Registry
}

// Queue runs tasks with bounded concurrency and collects their results in
// submission order. A Queue is single-use: once it finishes, later tasks
// are ignored.
//
// All methods are safe for concurrent use.
type Queue[T any] struct {
	limit      int
	name       string
	dispatcher dispatch.Dispatcher
	log        zerolog.Logger
	metrics    *metrics.Registry

	mu         sync.Mutex
	state      State
	pending    []TaskFunc[T]
	active     int
	nextSeq    int
	results    map[int]T
	onComplete CompleteFunc[T]

	// outcome, set once on the terminal transition
	err     error
	outcome []T
	done    chan struct{}
}

// New creates a Queue that runs at most parallelLimit tasks at once.
// It returns a ValidationError if parallelLimit is not positive.
func New[T any](parallelLimit int) (*Queue[T], error) {
	if err := validation.ValidatePositive(module, "parallelLimit", parallelLimit); err != nil {
		return nil, err
	}
	return NewWithConfig[T](Config{ParallelLimit: parallelLimit})
}

// NewWithConfig creates a Queue with the specified configuration.
func NewWithConfig[T any](config Config) (*Queue[T], error) {
	if err := validation.ValidateNonNegative(module, "parallelLimit", config.ParallelLimit); err != nil {
		return nil, err
	}

	limit := config.ParallelLimit
	if limit == 0 {
		limit = DefaultParallelLimit
	}

	name := config.Name
	if name == "" {
		name = DefaultName
	}

	base := zerolog.Nop()
	if config.Logger != nil {
		base = *config.Logger
	}

	d := config.Dispatcher
	if d == nil {
		d = dispatch.NewLoopWithConfig(dispatch.Config{Logger: &base})
	}

	return &Queue[T]{
		limit:      limit,
		name:       name,
		dispatcher: d,
		log:        base.With().Str("component", module).Str("queue", name).Logger(),
		metrics:    config.Metrics,
		results:    make(map[int]T),
		done:       make(chan struct{}),
	}, nil
}

// ParallelLimit returns the maximum number of concurrently running tasks.
func (q *Queue[T]) ParallelLimit() int {
	return q.limit
}

// Name returns the queue name used in logs and metrics.
func (q *Queue[T]) Name() string {
	return q.name
}

// State returns the current lifecycle state.
func (q *Queue[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Active returns the number of tasks started but not yet completed.
func (q *Queue[T]) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Pending returns the number of tasks waiting for a free slot.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
