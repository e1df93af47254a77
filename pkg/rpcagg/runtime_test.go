package rpcagg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	BaseEventHandler

	mu         sync.Mutex
	states     []StateChangeEvent
	dispatched int
	errs       []DispatchErrorEvent
}

func (h *recordingHandler) OnStateChange(e StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e)
}

func (h *recordingHandler) OnDispatch(e DispatchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatched += e.Records
}

func (h *recordingHandler) OnDispatchError(e DispatchErrorEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, e)
}

func (h *recordingHandler) Current() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]State, len(h.states))
	for i, e := range h.states {
		out[i] = e.Current
	}
	return out
}

// brokenTransport rejects every batch.
type brokenTransport struct{}

func (brokenTransport) MaxRequestPayloadSize() int { return 4096 }
func (brokenTransport) MaxReplyPayloadSize() int   { return 4096 }
func (brokenTransport) Progress()                  {}
func (brokenTransport) Dispatch(int, *Batch) error { return errors.New("link down") }

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Procs)
	assert.Equal(t, 1, cfg.LocalWorkers)
	assert.Equal(t, 2*time.Millisecond, cfg.FlushInterval)

	bad := []Config{
		{Procs: 2, Rank: 2},
		{LocalWorkers: 257},
		{Capacity: -1},
		{FlushInterval: -time.Second},
	}
	for _, c := range bad {
		c.SetDefaults()
		assert.ErrorIs(t, c.Validate(), ErrInvalidConfig, "%+v", c)
	}
}

func TestNew_RequiresTransportForManyProcesses(t *testing.T) {
	_, err := New(Config{Procs: 2})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRuntime_SingleProcessCalls(t *testing.T) {
	events := &recordingHandler{}
	rt, err := New(Config{LocalWorkers: 4}, WithEventHandler(events))
	require.NoError(t, err)
	assert.Equal(t, StateStopped, rt.Status())

	whoami, err := Register(rt, "whoami", func(_ context.Context, call CallInfo, prefix string) (string, error) {
		return fmt.Sprintf("%s%d", prefix, call.Worker), nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	assert.Equal(t, StateRunning, rt.Status())
	assert.ErrorIs(t, rt.Start(ctx), ErrAlreadyRunning)

	for w := 0; w < 4; w++ {
		f, err := Call(rt, w, whoami, "w")
		require.NoError(t, err)
		got, err := Await(ctx, rt, f)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("w%d", w), got)
	}

	_, err = Call(rt, 4, whoami, "w")
	assert.ErrorIs(t, err, ErrInvalidWorker)

	require.NoError(t, rt.Stop())
	assert.Equal(t, StateStopped, rt.Status())
	assert.ErrorIs(t, rt.Stop(), ErrNotRunning)
	assert.ErrorIs(t, rt.Start(ctx), ErrClosed)

	_, err = Call(rt, 0, whoami, "w")
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateStopped}, events.Current())
	assert.Equal(t, 4, events.dispatched)
	assert.Equal(t, uint64(4), rt.Stats().Requested)
}

func TestRuntime_HandlerErrors(t *testing.T) {
	rt, err := New(Config{})
	require.NoError(t, err)

	fail, err := Register(rt, "fail", func(context.Context, CallInfo, int) (int, error) {
		return 0, errors.New("no such key")
	})
	require.NoError(t, err)
	ghost := Handler[int, int]{id: 42, name: "ghost"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	f, err := Call(rt, 0, fail, 1)
	require.NoError(t, err)
	_, err = Await(ctx, rt, f)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "no such key")

	f, err = Call(rt, 0, ghost, 1)
	require.NoError(t, err)
	_, err = Await(ctx, rt, f)
	assert.ErrorIs(t, err, ErrUnknownHandler)

	_, err = Register(rt, "fail", func(context.Context, CallInfo, int) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrInvalidConfig)

	h, ok := Lookup[int, int](rt, "fail")
	require.True(t, ok)
	assert.Equal(t, fail.ID(), h.ID())
}

func TestRuntime_DispatchFailureCompletesCalls(t *testing.T) {
	events := &recordingHandler{}
	rt, err := New(Config{Procs: 2}, WithTransport(brokenTransport{}), WithEventHandler(events))
	require.NoError(t, err)
	noop, err := Register(rt, "noop", func(context.Context, CallInfo, int) (int, error) { return 0, nil })
	require.NoError(t, err)

	f, err := Call(rt, 1, noop, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, rt.FlushAll())

	require.True(t, f.Ready())
	_, err = f.Get()
	assert.ErrorContains(t, err, "link down")
	require.Len(t, events.errs, 1)
	assert.Equal(t, 1, events.errs[0].Dest)
}

func TestRuntime_Capacity(t *testing.T) {
	rt, err := New(Config{Capacity: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, rt.Capacity())
	assert.Greater(t, rt.MaxCapacity(), 10)

	got, err := rt.SetCapacity(3)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	got, err = rt.SetCapacity(30)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	_, err = rt.SetCapacity(0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRuntime_FlushInterval(t *testing.T) {
	rt, err := New(Config{FlushInterval: time.Second})
	require.NoError(t, err)
	assert.Equal(t, time.Second, rt.FlushInterval())
	rt.SetFlushInterval(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, rt.FlushInterval())
}

func TestIsVersionCompatible(t *testing.T) {
	tests := []struct {
		version, min string
		want         bool
	}{
		{"1.0.0", "1.0.0", true},
		{"1.1.0", "1.0.0", true},
		{"1.0.0", "1.0.1", false},
		{"2.0.0", "1.9.9", true},
		{"0.9.0", "1.0.0", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isVersionCompatible(tt.version, tt.min), "%s >= %s", tt.version, tt.min)
	}
	require.NoError(t, validateModuleVersions())
	assert.Equal(t, Version, ModuleVersions()["rpcagg"])
}
