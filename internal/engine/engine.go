package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/modeld/internal/model"
	"github.com/seantiz/modeld/internal/registry"
	"github.com/seantiz/modeld/internal/store"
	"github.com/seantiz/modeld/internal/task"
)

// Sender delivers a finished run's notification, e.g. by email.
type Sender interface {
	Send(ctx context.Context, n task.Notification) error
}

// LogSender is a Sender that only logs the notification. It stands in for a
// mail transport.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, n task.Notification) error {
	s.Logger.Info("notification ready",
		"to", n.To,
		"subject", n.Subject,
		"attachments", n.AttachmentNames(),
	)
	return nil
}

// Engine runs submitted task records asynchronously.
type Engine struct {
	store     store.Store
	registry  *registry.Registry
	lifecycle *task.Lifecycle
	logger    *slog.Logger
	sender    Sender
	wg        sync.WaitGroup
	broker    *EventBroker
}

// Option configures an Engine.
type Option func(*Engine)

// WithSender sets where finished notifications go. Without one they are only
// recorded in the store.
func WithSender(s Sender) Option {
	return func(e *Engine) { e.sender = s }
}

// NewEngine creates a new execution engine.
func NewEngine(s store.Store, reg *registry.Registry, lc *task.Lifecycle, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		registry:  reg,
		lifecycle: lc,
		logger:    logger,
		broker:    NewEventBroker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Submit binds rec to its registered model and starts the run in a
// goroutine. Lookup and binding errors (*registry.UnknownModelError,
// *task.ParameterBindingError, task.ErrInvalidRecord) are returned before
// anything is stored. The returned run is in state bound.
func (e *Engine) Submit(ctx context.Context, rec model.TaskRecord) (*model.TaskRun, error) {
	t, err := e.registry.Instantiate(rec)
	if err != nil {
		return nil, err
	}

	run := &model.TaskRun{
		ID:           model.NewID(),
		TaskID:       t.ID,
		EmailAddress: t.EmailAddress,
		ModelName:    t.Model.ShortName,
		ModelVersion: t.Model.Version,
		FailureCount: t.FailureCount,
		Parameters:   t.RawValues(),
		State:        model.StateBound,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateTask(ctx, run); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	runCopy := *run
	e.wg.Go(func() {
		e.execute(t, &runCopy)
	})

	return run, nil
}

// Wait blocks until all in-flight runs complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// execute drives one run to a terminal state and records the outcome.
func (e *Engine) execute(t *task.Task, run *model.TaskRun) {
	defer e.broker.Close(run.ID)

	runsInFlight.Inc()
	defer runsInFlight.Dec()

	obs := &runObserver{engine: e, runID: run.ID}
	start := time.Now().UTC()
	res := e.lifecycle.Run(context.Background(), t, obs)
	finished := time.Now().UTC()
	durationMS := int(finished.Sub(start).Milliseconds())

	run.State = res.State
	run.Subject = res.Notification.Subject
	run.Attachments = res.Notification.AttachmentNames()
	run.DurationMS = &durationMS
	run.StartedAt = &start
	run.FinishedAt = &finished
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if err := e.store.UpdateTask(context.Background(), run); err != nil {
		e.logger.Error("failed to record finished task", "run_id", run.ID, "task_id", run.TaskID, "error", err)
	}

	runsTotal.WithLabelValues(run.ModelName, string(res.State)).Inc()
	runDuration.WithLabelValues(run.ModelName).Observe(finished.Sub(start).Seconds())

	if e.sender != nil {
		if err := e.sender.Send(context.Background(), res.Notification); err != nil {
			e.logger.Error("failed to send notification", "run_id", run.ID, "task_id", run.TaskID, "error", err)
		}
	}
}

// runObserver persists lifecycle transitions and model output, then
// publishes them to live subscribers.
type runObserver struct {
	engine *Engine
	runID  string

	mu  sync.Mutex
	seq int
}

func (o *runObserver) Transition(_ *task.Task, from, to model.State, err error) {
	e := o.engine
	if uerr := e.store.UpdateTaskState(context.Background(), o.runID, to); uerr != nil {
		e.logger.Error("failed to record transition",
			"run_id", o.runID, "from", string(from), "to", string(to), "error", uerr)
	}

	ev := Event{Kind: EventState, State: to}
	if err != nil {
		ev.Error = err.Error()
	}
	e.broker.Publish(o.runID, ev)
}

func (o *runObserver) Output(_ *task.Task, line string) {
	e := o.engine
	o.mu.Lock()
	defer o.mu.Unlock()
	seq := o.seq
	o.seq++
	if err := e.store.InsertLogLine(context.Background(), o.runID, seq, line); err != nil {
		e.logger.Error("failed to persist log line", "run_id", o.runID, "seq", seq, "error", err)
	}
	e.broker.Publish(o.runID, Event{Kind: EventLog, Line: line})
}
