package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/rw/event"
)

func TestOrchestrator_RunsPhasesInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	note := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	var logs bytes.Buffer
	o := New(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, o.OnAsync(PhaseConfiguration, "slow-config", func(ctx context.Context, args ...any) (any, error) {
		time.Sleep(20 * time.Millisecond)
		note("config-async")
		return nil, nil
	}))
	require.NoError(t, o.On(PhaseSetup, "setup", func(ctx context.Context, args ...any) (any, error) {
		note("setup")
		return nil, nil
	}))
	require.NoError(t, o.On(PhaseStart, "start", func(ctx context.Context, args ...any) (any, error) {
		note("start")
		return nil, nil
	}))
	require.NoError(t, o.On(PhasePostStart, "post", func(ctx context.Context, args ...any) (any, error) {
		note("post")
		return nil, nil
	}))

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, []string{"config-async", "setup", "start", "post"}, order)

	out := logs.String()
	for _, line := range []string{
		"server startup: configuration phase",
		"server startup: setup phase",
		"server startup: start phase",
		"server startup: post start phase",
	} {
		assert.Contains(t, out, line)
	}

	history := o.History()
	require.Len(t, history, 8)
	assert.Equal(t, PhaseConfiguration, history[0].Phase)
	assert.Equal(t, StatusStarted, history[0].Status)
	assert.Equal(t, StatusCompleted, history[1].Status)
	assert.Equal(t, PhasePostStart, history[7].Phase)
	assert.Equal(t, history[0].RunID, history[7].RunID)
	assert.NotEqual(t, history[0].ID, history[1].ID)
}

func TestOrchestrator_StopsAtFailingPhase(t *testing.T) {
	boom := errors.New("no database")
	var records []Record
	o := New(WithObserver(func(rec Record) { records = append(records, rec) }))

	startRan := false
	require.NoError(t, o.On(PhaseSetup, "db", func(ctx context.Context, args ...any) (any, error) {
		return nil, boom
	}))
	require.NoError(t, o.On(PhaseStart, "start", func(ctx context.Context, args ...any) (any, error) {
		startRan = true
		return nil, nil
	}))

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "phase SETUP")
	var evErr *event.Error
	require.ErrorAs(t, err, &evErr)
	assert.Equal(t, []string{"db"}, evErr.Subscribers())
	assert.False(t, startRan)

	require.Len(t, records, 4)
	last := records[3]
	assert.Equal(t, PhaseSetup, last.Phase)
	assert.Equal(t, StatusFailed, last.Status)
	assert.Contains(t, last.Error, "no database")
}

func TestOrchestrator_RunOnce(t *testing.T) {
	o := New()
	require.NoError(t, o.Run(context.Background()))
	assert.ErrorIs(t, o.Run(context.Background()), ErrAlreadyRun)
}

func TestOrchestrator_UnknownPhase(t *testing.T) {
	o := New()
	noop := func(ctx context.Context, args ...any) (any, error) { return nil, nil }
	assert.ErrorIs(t, o.On("TEARDOWN", "x", noop), ErrUnknownPhase)
	assert.ErrorIs(t, o.OnAsync("TEARDOWN", "x", noop), ErrUnknownPhase)
	assert.Nil(t, o.Phase("TEARDOWN"))
	assert.Equal(t, "PHASE_SETUP", o.Phase(PhaseSetup).Name())
}

func TestOrchestrator_EventObserver(t *testing.T) {
	var fired []string
	o := New(WithEventObserver(func(name string, took time.Duration, err error) {
		fired = append(fired, name)
	}))
	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, []string{"PHASE_CONFIGURATION", "PHASE_SETUP", "PHASE_START", "PHASE_POST_START"}, fired)
}
