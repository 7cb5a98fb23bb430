// Package dispatch runs one independent remote operation per host
// under a bounded worker pool. Failures inside a task never escape it
// and never abort the batch.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hashguard/hashguard/internal/detect"
	"github.com/hashguard/hashguard/internal/fleet"
)

// Kind tags the operation a task performs. Tasks carry a kind plus a
// fixed parameter record instead of a closure, so the worker side
// dispatches through a small registry of handlers.
type Kind string

const (
	KindDetect Kind = "detect"
	KindRotate Kind = "rotate"
)

// Params is the fixed parameter record shipped with a task. Unused
// fields stay zero for the kinds that do not need them.
type Params struct {
	Account       string
	Secret        string
	Channel       string
	WindowSeconds int
}

// Task is one unit of work bound to exactly one host. Created once
// per host per invocation and consumed once by the dispatcher.
type Task struct {
	RequestID string
	Host      fleet.Host
	Kind      Kind
	Params    Params
}

// NewTask builds a task with a fresh request id.
func NewTask(host fleet.Host, kind Kind, params Params) Task {
	return Task{
		RequestID: uuid.New().String(),
		Host:      host,
		Kind:      kind,
		Params:    params,
	}
}

// Status classifies a task outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the uniform outcome record produced exactly once per
// submitted task, for both detection and rotation.
type Result struct {
	RequestID string
	Host      string
	Kind      Kind
	Status    Status
	Detail    string         // success payload summary
	Reason    string         // failure reason
	Events    []detect.Event // detection matches, when Kind is detect
}

// Success builds a success result for the task.
func Success(task Task, detail string) Result {
	return Result{
		RequestID: task.RequestID,
		Host:      task.Host.Name,
		Kind:      task.Kind,
		Status:    StatusSuccess,
		Detail:    detail,
	}
}

// Failure builds a failure result for the task.
func Failure(task Task, reason string) Result {
	return Result{
		RequestID: task.RequestID,
		Host:      task.Host.Name,
		Kind:      task.Kind,
		Status:    StatusFailure,
		Reason:    reason,
	}
}

// HandlerFunc executes one task. Returned errors do not exist: any
// failure must be folded into the result.
type HandlerFunc func(ctx context.Context, task Task) Result

// Dispatcher is a bounded worker pool. At most workers tasks execute
// simultaneously; workers=1 degrades to strict sequential execution
// with the same external contract. There is no cancellation: a hung
// remote call holds its slot until the transport times out.
type Dispatcher struct {
	handlers map[Kind]HandlerFunc
	sem      chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger

	mu        sync.Mutex
	results   []Result
	submitted int
}

// New creates a dispatcher with the given concurrency bound.
func New(workers int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		handlers: make(map[Kind]HandlerFunc),
		sem:      make(chan struct{}, workers),
		logger:   logger.With("component", "dispatcher"),
	}
}

// Register installs the handler for an operation kind. Handlers must
// be registered before the first Submit.
func (d *Dispatcher) Register(kind Kind, fn HandlerFunc) {
	d.handlers[kind] = fn
}

// Submit enqueues one task. It never blocks the caller; the worker
// goroutine waits on the concurrency semaphore instead.
func (d *Dispatcher) Submit(ctx context.Context, task Task) {
	d.mu.Lock()
	d.submitted++
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		d.record(d.execute(ctx, task))
	}()
}

// execute runs one task, converting panics and missing handlers into
// failure results. Nothing thrown inside a task may escape it.
func (d *Dispatcher) execute(ctx context.Context, task Task) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked",
				"request_id", task.RequestID,
				"host", task.Host.Name,
				"kind", task.Kind,
				"panic", r,
			)
			result = Failure(task, fmt.Sprintf("internal error: %v", r))
		}
	}()

	handler, ok := d.handlers[task.Kind]
	if !ok {
		return Failure(task, fmt.Sprintf("no handler for operation kind %q", task.Kind))
	}

	d.logger.Debug("executing task",
		"request_id", task.RequestID,
		"host", task.Host.Name,
		"kind", task.Kind,
	)

	return handler(ctx, task)
}

// record appends a result under the results lock.
func (d *Dispatcher) record(result Result) {
	d.mu.Lock()
	d.results = append(d.results, result)
	d.mu.Unlock()
}

// Wait blocks until every submitted task has completed and returns
// all results. Completion order is unspecified; no result is lost or
// duplicated. The dispatcher must not be reused after Wait.
func (d *Dispatcher) Wait() []Result {
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.results) != d.submitted {
		// Violation of the result-conservation contract; nothing
		// downstream can be trusted if this fires.
		panic(fmt.Sprintf("dispatcher produced %d results for %d submitted tasks",
			len(d.results), d.submitted))
	}

	out := make([]Result, len(d.results))
	copy(out, d.results)
	return out
}
