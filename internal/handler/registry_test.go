package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/rpcagg/internal/domain"
)

func echo(_ context.Context, worker int, payload []byte) ([]byte, error) {
	return append([]byte{byte(worker)}, payload...), nil
}

func TestRegistry_RegisterAndExecute(t *testing.T) {
	r := NewRegistry()

	id0, err := r.Register("echo", echo)
	require.NoError(t, err)
	id1, err := r.Register("fail", func(context.Context, int, []byte) ([]byte, error) {
		return nil, errors.New("nope")
	})
	require.NoError(t, err)

	assert.Equal(t, uint16(0), id0)
	assert.Equal(t, uint16(1), id1)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "fail", r.Name(1))
	assert.Equal(t, "", r.Name(9))

	id, ok := r.Lookup("echo")
	assert.True(t, ok)
	assert.Equal(t, id0, id)

	out, err := r.Execute(context.Background(), id0, 3, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 'h', 'i'}, out)

	_, err = r.Execute(context.Background(), id1, 0, nil)
	assert.EqualError(t, err, "nope")
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("", echo)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = r.Register("nil", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = r.Register("echo", echo)
	require.NoError(t, err)
	_, err = r.Register("echo", echo)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = r.Execute(context.Background(), 42, 0, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownHandler)
}
