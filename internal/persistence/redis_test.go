package persistence

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/support-desk/internal/config"
)

func TestNewRedisWithoutAddressIsDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	r := NewRedis(config.RedisConfig{}, zap.New(core))

	assert.Nil(t, r)
	assert.Equal(t, 1, logs.FilterMessageSnippet("token revocation disabled").Len())
	r.Close()
	assert.Error(t, r.Ping(context.Background()))
}

func TestNewRedisUnreachableIsDisabled(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	core, logs := observer.New(zapcore.WarnLevel)

	r := NewRedis(config.RedisConfig{Addr: addr}, zap.New(core))

	assert.Nil(t, r, "an unreachable server must not be wired as the revocation list")
	entries := logs.FilterMessageSnippet("unable to reach redis").All()
	require.Len(t, entries, 1)
	assert.Equal(t, addr, entries[0].ContextMap()["addr"])
}
