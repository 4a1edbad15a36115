// Package scheduler implements the Cooperative Scheduler (design §4.D):
// it starts cold tasks as resources permit and emits their results in
// order of completion, bundling any failures into a single error.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/resource"
)

var (
	metricQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytsearch_scheduler_queued",
		Help: "Cold tasks not yet started.",
	})
	metricRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytsearch_scheduler_running",
		Help: "Tasks currently hot.",
	})
	metricCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytsearch_scheduler_completed_total",
		Help: "Tasks that have finished, successfully or not.",
	})
)

// Task is a cold unit of work: a name for error reporting and a
// launcher that does the actual work once heated.
type Task struct {
	Name     string
	Launcher func(ctx context.Context) (any, error)
}

// Result is one task's outcome, emitted in completion order.
type Result struct {
	Name  string
	Value any
	Err   error
}

// Counters is a point-in-time snapshot of scheduler state, per §4.D's
// reporter.
type Counters struct {
	Queued    int
	Running   int
	Completed int
	CPU       float64
	Mem       resource.Pressure
}

// Reporter observes task-state transitions and exposes aggregate
// counters. The zero value is not usable; use NewReporter.
type Reporter struct {
	mu                          sync.Mutex
	queued, running, completed int
	monitor                    *resource.Monitor
}

func NewReporter(monitor *resource.Monitor) *Reporter {
	return &Reporter{monitor: monitor}
}

func (r *Reporter) setQueued(n int) {
	r.mu.Lock()
	r.queued = n
	r.mu.Unlock()
	metricQueued.Set(float64(n))
}

func (r *Reporter) startTask() {
	r.mu.Lock()
	r.running++
	r.mu.Unlock()
	metricRunning.Inc()
}

func (r *Reporter) finishTask() {
	r.mu.Lock()
	r.running--
	r.completed++
	r.mu.Unlock()
	metricRunning.Dec()
	metricCompletedTotal.Inc()
}

// Snapshot returns the current counters, including a fresh resource read.
func (r *Reporter) Snapshot() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Counters{Queued: r.queued, Running: r.running, Completed: r.completed}
	if r.monitor != nil {
		c.CPU = r.monitor.CPUUsagePercent()
		c.Mem = r.monitor.MemoryPressure()
	}
	return c
}

// Scheduler runs cold tasks under a resource budget, per §4.D.
type Scheduler struct {
	monitor  *resource.Monitor
	delay    time.Duration
	Reporter *Reporter
}

// New constructs a Scheduler. delayBetweenHeatUps is the sleep between
// heat-up checks when the heater is waiting for capacity.
func New(monitor *resource.Monitor, delayBetweenHeatUps time.Duration) *Scheduler {
	return &Scheduler{
		monitor:  monitor,
		delay:    delayBetweenHeatUps,
		Reporter: NewReporter(monitor),
	}
}

// hotTask tracks an in-flight task so the consumer can collect its result.
type hotTask struct {
	name string
	done chan Result
}

// Run heats up tasks as resources permit and streams their results to
// resultCh in completion order, closing it when every task has
// finished. It blocks until that point and returns the bundled error of
// any failed tasks, or nil if all succeeded.
//
// Cancelling ctx stops the heater from starting further tasks but lets
// already-hot tasks drain so their results (and errors) still surface,
// per §4.D's cancellation rule.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, resultCh chan<- Result) error {
	defer close(resultCh)

	s.Reporter.setQueued(len(tasks))

	hotCh := make(chan hotTask, len(tasks))
	done := make(chan Result, len(tasks))
	var heaterWG sync.WaitGroup
	heaterWG.Add(1)

	go func() {
		defer heaterWG.Done()
		defer close(hotCh)

		running := 0
		var runningMu sync.Mutex

		for i, task := range tasks {
			if ctx.Err() != nil {
				break
			}

			runningMu.Lock()
			haveRunning := running > 0
			runningMu.Unlock()

			if haveRunning && s.monitor != nil {
				for !s.monitor.HasSufficient() {
					select {
					case <-ctx.Done():
						return
					case <-time.After(s.delay):
					}
				}
			}

			runningMu.Lock()
			running++
			runningMu.Unlock()
			s.Reporter.setQueued(len(tasks) - i - 1)
			s.Reporter.startTask()

			hotCh <- hotTask{name: task.Name, done: done}

			go func(task Task) {
				defer func() {
					runningMu.Lock()
					running--
					runningMu.Unlock()
				}()

				val, err := task.Launcher(ctx)
				done <- Result{Name: task.Name, Value: val, Err: err}
			}(task)
		}
	}()

	bundle := &domain.BundledError{}
	for ht := range hotCh {
		res := <-ht.done
		s.Reporter.finishTask()
		if res.Err != nil {
			bundle.Add(res.Name, res.Err)
		}
		resultCh <- res
	}

	heaterWG.Wait()
	return bundle.AsError()
}

// RunAll is Run for callers who just want the final results slice and
// don't need to consume them incrementally.
func (s *Scheduler) RunAll(ctx context.Context, tasks []Task) ([]Result, error) {
	resultCh := make(chan Result, len(tasks))
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Run(ctx, tasks, resultCh)
	}()

	results := make([]Result, 0, len(tasks))
	for res := range resultCh {
		results = append(results, res)
	}

	return results, <-errCh
}
