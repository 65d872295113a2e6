package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	client := New(context.Background(), mr.Addr(), nil)
	defer Close(client, nil)

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewToleratesUnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := New(context.Background(), addr, nil)
	require.NotNil(t, client)
	require.Error(t, client.Ping(context.Background()).Err())
	Close(client, nil)
}
