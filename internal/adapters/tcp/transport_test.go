package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/rpcagg/internal/app"
	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/internal/handler"
	"github.com/bft-labs/rpcagg/pkg/future"
)

// freeAddrs reserves n loopback ports and releases them for the transports.
func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = ln.Addr().String()
		require.NoError(t, ln.Close())
	}
	return addrs
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Rank: 1, Peers: []string{"a:1", "b:2"}}, false},
		{"no peers", Config{}, true},
		{"rank out of range", Config{Rank: 2, Peers: []string{"a:1", "b:2"}}, true},
		{"negative limit", Config{Peers: []string{"a:1"}, MaxReplyPayload: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.SetDefaults()
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransport_ManagersOverTCP(t *testing.T) {
	const calls = 300
	peers := freeAddrs(t, 2)
	topo := domain.Topology{Procs: 2, LocalWorkers: 2}

	reg := handler.NewRegistry()
	square, err := reg.Register("square", func(_ context.Context, _ int, p []byte) ([]byte, error) {
		return []byte{p[0] * p[0]}, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transports := make([]*Transport, 2)
	managers := make([]*app.Manager, 2)
	for rank := range transports {
		tr, err := New(Config{Rank: rank, Peers: peers, DialTimeout: 5 * time.Second}, nil)
		require.NoError(t, err)
		require.NoError(t, tr.Start(ctx))
		tr.BindExecutor(reg)
		t.Cleanup(func() { _ = tr.Close() })
		transports[rank] = tr

		topo := topo
		topo.Rank = rank
		managers[rank], err = app.NewManager(app.ManagerConfig{Capacity: 16}, topo, tr, nil, nil)
		require.NoError(t, err)
	}

	progressAll := func() {
		for _, m := range managers {
			m.Progress()
		}
	}

	futures := make([]*future.Future[byte], calls)
	for i := range futures {
		futures[i] = future.New[byte](func(b []byte) (byte, error) { return b[0], nil })
		src := managers[i%2]
		require.NoError(t, src.Submit(i%topo.Workers(), square, []byte{byte(i % 16)}, futures[i].Slot()))
	}
	for _, m := range managers {
		m.FlushAll()
	}

	wctx, wcancel := context.WithTimeout(ctx, 10*time.Second)
	defer wcancel()
	for i, f := range futures {
		v, err := f.WaitProgress(wctx, progressAll)
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, byte((i%16)*(i%16)), v)
	}
	assert.Equal(t, 0, transports[0].Endpoint().Outstanding())
}

func TestTransport_CloseFailsOutstanding(t *testing.T) {
	peers := freeAddrs(t, 2)
	tr, err := New(Config{Rank: 0, Peers: peers, DialTimeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background()))

	// Rank 1 never starts, so the dial gives up.
	s := future.NewSlot()
	err = tr.Dispatch(1, domain.NewBatch(1, []domain.CallRecord{{ID: 1, Reply: s}}))
	require.Error(t, err)
	assert.Equal(t, 0, tr.Endpoint().Outstanding())

	// Self-sends skip the socket and stay outstanding until served.
	s2 := future.NewSlot()
	require.NoError(t, tr.Dispatch(0, domain.NewBatch(0, []domain.CallRecord{{ID: 2, Reply: s2}})))
	assert.Equal(t, 1, tr.Endpoint().Outstanding())

	require.NoError(t, tr.Close())
	_, err = s2.Result()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tr.Dispatch(0, domain.NewBatch(0, nil)), ErrClosed)
	require.NoError(t, tr.Close())
}

func TestTransport_StartTwice(t *testing.T) {
	peers := freeAddrs(t, 1)
	tr, err := New(Config{Peers: peers}, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Close()
	assert.ErrorIs(t, tr.Start(context.Background()), domain.ErrAlreadyRunning)
	assert.NotNil(t, tr.Addr())
}
