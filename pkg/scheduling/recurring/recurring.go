package recurring

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	fqerrors "github.com/vnykmshr/funcqueue/pkg/common/errors"
	"github.com/vnykmshr/funcqueue/pkg/common/validation"
	"github.com/vnykmshr/funcqueue/pkg/metrics"
	"github.com/vnykmshr/funcqueue/pkg/scheduling/dispatch"
	"github.com/vnykmshr/funcqueue/pkg/scheduling/taskqueue"
)

const module = "recurring"

// ErrRunInProgress is returned by RunNow when the job's previous run has
// not finished yet.
var ErrRunInProgress = errors.New("recurring: run already in progress")

// Job is a batch of tasks executed through a fresh queue on every tick.
type Job struct {
	// Name identifies the job. Required and unique per Runner.
	Name string

	// Schedule is a cron expression. Both five-field ("*/5 * * * *") and
	// six-field forms with leading seconds are accepted, as are
	// descriptors such as "@hourly" and "@every 30s".
	Schedule string

	// ParallelLimit bounds concurrent tasks within one run.
	// Zero means taskqueue.DefaultParallelLimit.
	ParallelLimit int

	// Build adds the run's tasks to q. Returning an error fails the run
	// without waiting for tasks already added.
	Build func(q *taskqueue.Queue[any]) error

	// OnResult receives every finished run. Optional.
	OnResult func(run Run)
}

// Run describes one execution of a Job.
type Run struct {
	ID       string
	Job      string
	Results  []any
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Config holds configuration options for a Runner.
type Config struct {
	// Location is used to evaluate schedules. Defaults to time.Local.
	Location *time.Location

	// Dispatcher is shared by every queue the runner creates. If nil, each
	// run gets its own dispatch.Loop.
	//
	// Runs block until their queue finishes, so the dispatcher must make
	// progress on its own. A dispatch.Loop does; a dispatch.Manual must be
	// stepped from another goroutine, or every run waits until its context
	// ends.
	Dispatcher dispatch.Dispatcher

	// Logger receives scheduling events. If nil, events are discarded.
	Logger *zerolog.Logger

	// Metrics enables Prometheus collection when non-nil.
	Metrics *metrics.Registry
}

type entry struct {
	job      Job
	id       cron.EntryID
	schedule cron.Schedule
	busy     atomic.Bool
}

// Runner executes Jobs on their cron schedules.
type Runner struct {
	config   Config
	base     zerolog.Logger
	log      zerolog.Logger
	location *time.Location
	parser   cron.Parser
	cron     *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	jobs     map[string]*entry
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a Runner. Jobs do not fire until Start is called.
func New(config Config) *Runner {
	base := zerolog.Nop()
	if config.Logger != nil {
		base = *config.Logger
	}
	log := base.With().Str("component", module).Logger()

	location := config.Location
	if location == nil {
		location = time.Local
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		config:   config,
		base:     base,
		log:      log,
		location: location,
		parser:   parser,
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*entry),
		stopped: make(chan struct{}),
	}
}

// Add registers a job. It fails if the job is invalid, its schedule
// cannot be parsed, or a job with the same name exists.
func (r *Runner) Add(job Job) error {
	if err := validation.ValidateNotEmpty(module, "name", job.Name); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty(module, "schedule", job.Schedule); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "parallelLimit", job.ParallelLimit); err != nil {
		return err
	}
	if job.Build == nil {
		return fqerrors.NewValidationError(module, "build", nil, "cannot be nil").
			WithHint("provide a function that adds the run's tasks")
	}

	schedule, err := r.parser.Parse(job.Schedule)
	if err != nil {
		return fqerrors.NewOperationError(module, "Add", err).WithContext("schedule " + job.Schedule)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name]; exists {
		return fqerrors.NewValidationError(module, "name", job.Name, "already registered").
			WithHint("remove the existing job first")
	}

	e := &entry{job: job, schedule: schedule}
	e.id = r.cron.Schedule(schedule, cron.FuncJob(func() { r.tick(e) }))
	r.jobs[job.Name] = e

	r.log.Debug().Str("job", job.Name).Str("schedule", job.Schedule).Msg("job added")
	return nil
}

// Remove unregisters a job. Runs already in progress finish normally.
func (r *Runner) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.jobs[name]
	if !exists {
		return false
	}
	r.cron.Remove(e.id)
	delete(r.jobs, name)
	return true
}

// Jobs returns the registered job names in sorted order.
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns the next activation time of the named job.
func (r *Runner) Next(name string) (time.Time, error) {
	e, err := r.lookup("Next", name)
	if err != nil {
		return time.Time{}, err
	}
	return e.schedule.Next(time.Now().In(r.location)), nil
}

// Start begins firing jobs on their schedules.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop stops scheduling new runs and stops waiting on in-flight ones.
// Tasks already started are not interrupted. The returned channel closes
// once every in-flight run has reported.
func (r *Runner) Stop() <-chan struct{} {
	r.stopOnce.Do(func() {
		r.cancel()
		ctx := r.cron.Stop()
		go func() {
			<-ctx.Done()
			close(r.stopped)
		}()
	})
	return r.stopped
}

// RunNow executes the named job immediately on the calling goroutine and
// returns its run. ctx bounds how long RunNow waits for the run's tasks.
func (r *Runner) RunNow(ctx context.Context, name string) (Run, error) {
	e, err := r.lookup("RunNow", name)
	if err != nil {
		return Run{}, err
	}
	return r.execute(ctx, e)
}

func (r *Runner) lookup(op, name string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.jobs[name]
	if !exists {
		return nil, fqerrors.NewOperationError(module, op, fqerrors.ErrNotFound).WithContext("job " + name)
	}
	return e, nil
}

// tick is the cron entry point for a job.
func (r *Runner) tick(e *entry) {
	if _, err := r.execute(r.ctx, e); errors.Is(err, ErrRunInProgress) {
		r.log.Debug().Str("job", e.job.Name).Msg("skipping tick: previous run still in progress")
	}
}

// execute performs one run of e unless another run is in progress.
func (r *Runner) execute(ctx context.Context, e *entry) (Run, error) {
	if !e.busy.CompareAndSwap(false, true) {
		if r.config.Metrics != nil {
			r.config.Metrics.RecurringSkipped.WithLabelValues(e.job.Name).Inc()
		}
		return Run{}, ErrRunInProgress
	}
	defer e.busy.Store(false)

	run := Run{ID: uuid.NewString(), Job: e.job.Name, Started: time.Now()}
	run.Results, run.Err = r.runQueue(ctx, e.job)
	run.Duration = time.Since(run.Started)

	outcome := metrics.OutcomeOK
	if run.Err != nil {
		outcome = metrics.OutcomeError
		r.log.Warn().Err(run.Err).Str("job", e.job.Name).Str("run_id", run.ID).Dur("duration", run.Duration).Msg("run failed")
	} else {
		r.log.Debug().Str("job", e.job.Name).Str("run_id", run.ID).Int("results", len(run.Results)).Dur("duration", run.Duration).Msg("run finished")
	}
	if r.config.Metrics != nil {
		r.config.Metrics.RecurringRuns.WithLabelValues(e.job.Name, outcome).Inc()
	}

	if e.job.OnResult != nil {
		e.job.OnResult(run)
	}
	return run, nil
}

func (r *Runner) runQueue(ctx context.Context, job Job) ([]any, error) {
	q, err := taskqueue.NewWithConfig[any](taskqueue.Config{
		ParallelLimit: job.ParallelLimit,
		Name:          job.Name,
		Dispatcher:    r.config.Dispatcher,
		Logger:        &r.base,
		Metrics:       r.config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if err := job.Build(q); err != nil {
		return nil, err
	}

	// A queue without tasks never finishes on its own.
	if q.State() == taskqueue.StateOpen {
		return []any{}, nil
	}
	return q.Wait(ctx)
}
