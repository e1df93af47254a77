package loopback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/rpcagg/internal/app"
	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/internal/handler"
	"github.com/bft-labs/rpcagg/internal/wire"
	"github.com/bft-labs/rpcagg/pkg/future"
)

func TestFabric_Attach(t *testing.T) {
	f := NewFabric(2, WithPayloadLimits(1000, 500))
	tr, err := f.Attach(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1000, tr.MaxRequestPayloadSize())
	assert.Equal(t, 500, tr.MaxReplyPayloadSize())

	_, err = f.Attach(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = f.Attach(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	err = tr.Dispatch(1, domain.NewBatch(1, []domain.CallRecord{{ID: 1}}))
	assert.Error(t, err, "rank 1 is not attached")
}

// TestFabric_ManagersExchangeCalls runs two aggregation managers over the
// fabric and checks that every call gets its own answer.
func TestFabric_ManagersExchangeCalls(t *testing.T) {
	const calls = 200
	topo := domain.Topology{Procs: 2, LocalWorkers: 2}
	fabric := NewFabric(topo.Procs, WithPayloadLimits(
		wire.BatchHeaderSize+4*wire.RequestRecordSize,
		wire.BatchHeaderSize+4*wire.ReplyRecordSize,
	))

	reg := handler.NewRegistry()
	double, err := reg.Register("double", func(_ context.Context, _ int, p []byte) ([]byte, error) {
		return []byte{p[0] * 2}, nil
	})
	require.NoError(t, err)

	managers := make([]*app.Manager, topo.Procs)
	for rank := range managers {
		tr, err := fabric.Attach(context.Background(), rank)
		require.NoError(t, err)
		tr.BindExecutor(reg)
		topo := topo
		topo.Rank = rank
		managers[rank], err = app.NewManager(app.ManagerConfig{}, topo, tr, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, managers[rank].Capacity())
	}

	progressAll := func() {
		for _, m := range managers {
			m.Progress()
		}
	}

	futures := make([]*future.Future[byte], calls)
	for i := range futures {
		futures[i] = future.New[byte](func(b []byte) (byte, error) { return b[0], nil })
		require.NoError(t, managers[0].Submit(i%topo.Workers(), double, []byte{byte(i % 100)}, futures[i].Slot()))
	}
	for _, m := range managers {
		m.FlushAll()
	}

	for i, f := range futures {
		v, err := f.WaitProgress(context.Background(), progressAll)
		require.NoError(t, err)
		assert.Equal(t, byte(i%100)*2, v)
	}
	assert.Equal(t, uint64(calls), managers[0].Stats().Requested)
}
