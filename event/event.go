// Package event implements named events with parallel dispatch.
//
// An Event is an ordered, de-duplicated set of named subscribers. Firing
// an event calls every subscriber with the same arguments: synchronous
// subscribers run inline in registration order, asynchronous subscribers
// are started as they are reached and run concurrently. Firing returns
// once every subscriber finished, with either the ordered results (or the
// accumulator's reduction of them) or an *Error naming every subscriber
// that failed.
//
//	started := event.New("app.started", event.WithAccumulator(event.Sum[int]))
//	started.Add("count", func(ctx context.Context, args ...any) (any, error) {
//		return 1, nil
//	})
//	started.AddAsync("warm-cache", warmCache)
//	total, err := started.Fire(ctx)
package event

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"
)

// Static errors for event package
var (
	ErrSubscriberPanic = errors.New("subscriber panicked")
	ErrResultType      = errors.New("subscriber result has unexpected type")
)

// Func is an event subscriber. It receives the arguments given to Fire.
type Func func(ctx context.Context, args ...any) (any, error)

// Accumulator reduces the ordered subscriber results of one firing.
type Accumulator func(results []any) (any, error)

// Observer is told about every firing of an event.
type Observer func(event string, took time.Duration, err error)

type subscriber struct {
	name  string
	fn    Func
	async bool
}

// Event is a named set of subscribers. It is safe for concurrent use.
type Event struct {
	name string

	mu          sync.RWMutex
	subs        []subscriber
	accumulator Accumulator
	observer    Observer
}

// Option configures an Event.
type Option func(*Event)

// WithAccumulator sets the function applied to the results of a firing.
func WithAccumulator(acc Accumulator) Option {
	return func(e *Event) {
		e.accumulator = acc
	}
}

// WithObserver sets the observer told about every firing.
func WithObserver(obs Observer) Option {
	return func(e *Event) {
		e.observer = obs
	}
}

// New creates an event.
func New(name string, opts ...Option) *Event {
	e := &Event{name: name}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the event name.
func (e *Event) Name() string {
	return e.name
}

// SetObserver replaces the observer.
func (e *Event) SetObserver(obs Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = obs
}

// Add registers a synchronous subscriber. It returns false, leaving the
// event unchanged, if a subscriber with that name is already registered.
func (e *Event) Add(name string, fn Func) bool {
	return e.add(subscriber{name: name, fn: fn})
}

// AddAsync registers a subscriber that runs in its own goroutine while
// the event fires.
func (e *Event) AddAsync(name string, fn Func) bool {
	return e.add(subscriber{name: name, fn: fn, async: true})
}

func (e *Event) add(sub subscriber) bool {
	if sub.fn == nil {
		panic(fmt.Sprintf("event %s: nil subscriber %q", e.name, sub.name))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.subs {
		if s.name == sub.name {
			return false
		}
	}
	e.subs = append(e.subs, sub)
	return true
}

// Remove unregisters the subscriber called name.
func (e *Event) Remove(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.name == name {
			e.subs = slices.Delete(e.subs, i, i+1)
			return true
		}
	}
	return false
}

// Len returns the number of subscribers.
func (e *Event) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Names returns the subscriber names in registration order.
func (e *Event) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.subs))
	for i, s := range e.subs {
		names[i] = s.name
	}
	return names
}

// Fire calls every subscriber with args and waits for all of them.
//
// Synchronous subscribers have all run before any asynchronous one is
// waited for. Results are ordered by registration. If any subscriber
// failed, the returned error is an *Error listing every failure.
// Otherwise the accumulator's value is returned, or the []any of results
// when there is no accumulator.
func (e *Event) Fire(ctx context.Context, args ...any) (any, error) {
	start := time.Now()
	e.mu.RLock()
	subs := slices.Clone(e.subs)
	acc := e.accumulator
	obs := e.observer
	e.mu.RUnlock()

	results := make([]any, len(subs))
	failures := make([]*Failure, len(subs))

	var wg sync.WaitGroup
	for i, sub := range subs {
		if sub.async {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], failures[i] = call(ctx, sub, args)
			}()
			continue
		}
		results[i], failures[i] = call(ctx, sub, args)
	}
	wg.Wait()

	var out any = results
	err := e.collect(failures)
	if err == nil && acc != nil {
		if out, err = acc(results); err != nil {
			err = fmt.Errorf("event %s: accumulator: %w", e.name, err)
		}
	}
	if obs != nil {
		obs(e.name, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Event) collect(failures []*Failure) error {
	var failed []Failure
	for _, f := range failures {
		if f != nil {
			failed = append(failed, *f)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &Error{Event: e.name, Failures: failed}
}

func call(ctx context.Context, sub subscriber, args []any) (result any, failure *Failure) {
	defer func() {
		if r := recover(); r != nil {
			failure = &Failure{
				Subscriber: sub.name,
				Async:      sub.async,
				Err:        fmt.Errorf("%w: %v", ErrSubscriberPanic, r),
				Stack:      string(debug.Stack()),
			}
		}
	}()

	result, err := sub.fn(ctx, args...)
	if err != nil {
		return nil, &Failure{Subscriber: sub.name, Async: sub.async, Err: err}
	}
	return result, nil
}

// Failure is the failure of one subscriber during a firing.
type Failure struct {
	Subscriber string
	Async      bool
	Err        error
	// Stack is the goroutine stack captured when the subscriber panicked.
	Stack string
}

// Error is returned by Fire when one or more subscribers failed.
type Error struct {
	Event    string
	Failures []Failure
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "event %s: %d subscriber(s) failed", e.Event, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n%s: %v", f.Subscriber, f.Err)
		if f.Stack != "" {
			b.WriteString("\n")
			b.WriteString(f.Stack)
		}
	}
	return b.String()
}

// Unwrap exposes the subscriber errors to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Subscribers returns the names of the failed subscribers.
func (e *Error) Subscribers() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Subscriber
	}
	return names
}
