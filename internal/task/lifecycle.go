package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"github.com/seantiz/modeld/internal/model"
)

// Renderer turns a document body into PDF bytes. dir is the task's working
// directory and may be used for intermediate files.
type Renderer interface {
	Render(ctx context.Context, dir string, body string) ([]byte, error)
}

// Observer is told about every state change and every line of model output
// during a run. Transition is called on the goroutine executing Run; Output
// may be called from goroutines the model's runner starts.
type Observer interface {
	Transition(t *Task, from, to model.State, err error)
	Output(t *Task, line string)
}

type nopObserver struct{}

func (nopObserver) Transition(*Task, model.State, model.State, error) {}
func (nopObserver) Output(*Task, string)                              {}

// Result is the outcome of one lifecycle run.
type Result struct {
	State        model.State
	Notification Notification
	// Err is the failure cause when State is model.StateFailed.
	Err error
}

// Lifecycle runs bound tasks to completion.
type Lifecycle struct {
	renderer    Renderer
	messages    Messages
	resultsBody *template.Template
	logger      *slog.Logger
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithMessages overrides the notification texts. Empty fields keep their
// defaults.
func WithMessages(m Messages) LifecycleOption {
	return func(l *Lifecycle) { l.messages = m }
}

// WithLogger sets the lifecycle logger.
func WithLogger(logger *slog.Logger) LifecycleOption {
	return func(l *Lifecycle) { l.logger = logger }
}

// NewLifecycle creates a Lifecycle that renders results with r.
func NewLifecycle(r Renderer, opts ...LifecycleOption) (*Lifecycle, error) {
	if r == nil {
		return nil, errors.New("renderer is required")
	}
	l := &Lifecycle{
		renderer: r,
		messages: DefaultMessages(),
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.messages = l.messages.withDefaults()

	tmpl, err := template.New("results_body").Parse(l.messages.ResultsBody)
	if err != nil {
		return nil, fmt.Errorf("parse results body template: %w", err)
	}
	l.resultsBody = tmpl
	return l, nil
}

// Run executes t from the bound state. It never returns an error: failures
// yield a failure notification with State model.StateFailed. The working
// directory is removed before Run returns on every path.
func (l *Lifecycle) Run(ctx context.Context, t *Task, obs Observer) Result {
	if obs == nil {
		obs = nopObserver{}
	}
	log := l.logger.With("task_id", t.ID, "model", t.Model.ShortName, "version", t.Model.Version)

	state := model.StateBound
	move := func(to model.State, err error) {
		obs.Transition(t, state, to, err)
		state = to
	}
	fail := func(err error) Result {
		log.Error("task failed", "state", string(state), "error", err)
		move(model.StateFailed, err)
		return Result{State: model.StateFailed, Notification: l.failureNotification(t), Err: err}
	}

	log.Info("running task", "email", t.EmailAddress, "failure_count", t.FailureCount)
	move(model.StateRunning, nil)

	if err := t.createWorkingDirectory(); err != nil {
		return fail(fmt.Errorf("create working directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(t.WorkingDirectory); err != nil {
			log.Error("remove working directory", "dir", t.WorkingDirectory, "error", err)
		}
	}()

	if err := l.runModel(ctx, t, obs); err != nil {
		return fail(err)
	}

	attachments, err := l.artifacts(ctx, t)
	if err != nil {
		return fail(err)
	}
	move(model.StateArtifactsGenerated, nil)

	n, err := l.resultsNotification(t, attachments)
	if err != nil {
		return fail(err)
	}
	move(model.StateCompleted, nil)
	log.Info("task completed", "attachments", len(n.Attachments))

	return Result{State: model.StateCompleted, Notification: n}
}

// runModel invokes the model's own computation. A panicking runner is
// reported as a run failure.
func (l *Lifecycle) runModel(ctx context.Context, t *Task, obs Observer) (err error) {
	runner := t.Model.Runner
	if runner == nil {
		l.logger.Warn("model has no run behaviour", "model", t.Model.ShortName)
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrModelRun, p)
		}
	}()

	rc := model.RunContext{
		Dir:    t.WorkingDirectory,
		Values: t.Values(),
		Log:    func(line string) { obs.Output(t, line) },
	}
	if err := runner.Run(ctx, rc); err != nil {
		return fmt.Errorf("%w: %w", ErrModelRun, err)
	}
	return nil
}

// artifacts renders the results document and reads back every declared
// attachment. A panicking renderer is reported as an artifact failure.
func (l *Lifecycle) artifacts(ctx context.Context, t *Task) (_ []Attachment, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ArtifactGenerationError{Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	body, err := documentBody(t)
	if err != nil {
		return nil, &ArtifactGenerationError{Err: err}
	}

	pdf, err := l.renderer.Render(ctx, t.WorkingDirectory, body)
	if err != nil {
		return nil, &ArtifactGenerationError{Err: err}
	}

	attachments := []Attachment{{Name: PrimaryArtifact, Data: pdf}}
	for _, name := range t.Model.Attachments {
		data, err := os.ReadFile(filepath.Join(t.WorkingDirectory, name))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &AttachmentMissingError{Name: name}
		}
		if err != nil {
			return nil, &ArtifactGenerationError{Err: fmt.Errorf("read attachment %s: %w", name, err)}
		}
		attachments = append(attachments, Attachment{Name: name, Data: data})
	}
	return attachments, nil
}

func (l *Lifecycle) resultsNotification(t *Task, attachments []Attachment) (Notification, error) {
	var body bytes.Buffer
	if err := l.resultsBody.Execute(&body, newDocumentData(t)); err != nil {
		return Notification{}, fmt.Errorf("execute results body template: %w", err)
	}
	return Notification{
		To:          t.EmailAddress,
		Subject:     l.messages.ResultsSubject,
		Body:        body.String(),
		Attachments: attachments,
	}, nil
}

func (l *Lifecycle) failureNotification(t *Task) Notification {
	return Notification{
		To:      t.EmailAddress,
		Subject: l.messages.FailureSubject,
		Body:    l.messages.FailureBody,
	}
}
