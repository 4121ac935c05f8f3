package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/rw/event"
	"github.com/GoCodeAlone/rw/internal/logging"
)

// Static errors for lifecycle package
var (
	ErrAlreadyRun   = errors.New("startup sequence already run")
	ErrUnknownPhase = errors.New("unknown phase")
)

// Orchestrator owns one event per phase and fires them in sequence.
type Orchestrator struct {
	phases   map[Phase]*event.Event
	logger   logging.Logger
	observer Observer

	mu      sync.Mutex
	ran     bool
	history []Record
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for phase progress.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithObserver sets the function told about every phase record.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithEventObserver installs obs on every phase event.
func WithEventObserver(obs event.Observer) Option {
	return func(o *Orchestrator) {
		for _, ev := range o.phases {
			ev.SetObserver(obs)
		}
	}
}

// New creates an orchestrator with an empty event per phase.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{phases: make(map[Phase]*event.Event)}
	for _, p := range Sequence() {
		o.phases[p] = event.New("PHASE_" + string(p))
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDiscard(o.logger)
	return o
}

// Phase returns the event fired for p, or nil if p is not a phase.
func (o *Orchestrator) Phase(p Phase) *event.Event {
	return o.phases[p]
}

// On subscribes fn to phase p.
func (o *Orchestrator) On(p Phase, name string, fn event.Func) error {
	ev, ok := o.phases[p]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, p)
	}
	ev.Add(name, fn)
	return nil
}

// OnAsync subscribes fn to phase p as an asynchronous subscriber.
func (o *Orchestrator) OnAsync(p Phase, name string, fn event.Func) error {
	ev, ok := o.phases[p]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, p)
	}
	ev.AddAsync(name, fn)
	return nil
}

// Run fires the phases in order. A phase starts only after every
// subscriber of the previous one, asynchronous ones included, returned.
// Run stops at the first failing phase; phases already completed stay
// completed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.ran {
		o.mu.Unlock()
		return ErrAlreadyRun
	}
	o.ran = true
	o.mu.Unlock()

	runID := uuid.NewString()
	for _, p := range Sequence() {
		o.logger.Info(fmt.Sprintf("server startup: %s phase", p.label()))
		start := time.Now()
		o.record(Record{RunID: runID, Phase: p, Status: StatusStarted, Timestamp: start})

		_, err := o.phases[p].Fire(ctx)
		rec := Record{RunID: runID, Phase: p, Status: StatusCompleted, Timestamp: time.Now(), Duration: time.Since(start)}
		if err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			o.record(rec)
			o.logger.Error("Startup phase failed", "phase", p, "error", err)
			return fmt.Errorf("phase %s: %w", p, err)
		}
		o.record(rec)
	}
	return nil
}

func (o *Orchestrator) record(rec Record) {
	rec.ID = uuid.NewString()
	o.mu.Lock()
	o.history = append(o.history, rec)
	obs := o.observer
	o.mu.Unlock()
	if obs != nil {
		obs(rec)
	}
}

// History returns the records produced so far.
func (o *Orchestrator) History() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.history)
}
