// Copyright (c) 2025 The FileZap developers

package main

import (
	"testing"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VetheonGames/sharenode/pkg/types"
)

func validConfig(t *testing.T) config {
	return config{
		Listen:        "127.0.0.1:8001",
		Shared:        t.TempDir(),
		DialTimeout:   time.Second,
		IOTimeout:     time.Second,
		ChunkTimeout:  time.Second,
		MaxLineBytes:  1024 * 1024,
		ChunkSize:     4,
		MaxChunkBytes: 1024,
	}
}

func TestValidateNetworkOptions(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, validateNetworkOptions(&cfg))
	assert.Equal(t, types.Addr{IP: "127.0.0.1", Port: 8001}, cfg.listenAddr)

	cfg.Listen = "127.0.0.1:0"
	require.NoError(t, validateNetworkOptions(&cfg))
	assert.Zero(t, cfg.listenAddr.Port)

	for _, bad := range []string{"127.0.0.1", ":8001", "127.0.0.1:99999", "127.0.0.1:abc"} {
		cfg.Listen = bad
		assert.Error(t, validateNetworkOptions(&cfg), bad)
	}

	cfg = validConfig(t)
	cfg.IOTimeout = 0
	assert.Error(t, validateNetworkOptions(&cfg))

	cfg = validConfig(t)
	cfg.ProxyUser = "alice"
	assert.Error(t, validateNetworkOptions(&cfg))
	cfg.Proxy = "nohostport"
	assert.Error(t, validateNetworkOptions(&cfg))
	cfg.Proxy = "127.0.0.1:9050"
	assert.NoError(t, validateNetworkOptions(&cfg))
}

func TestValidateSharingOptions(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, validateSharingOptions(&cfg))

	cfg.ChunkSize = 0
	assert.Error(t, validateSharingOptions(&cfg))

	cfg = validConfig(t)
	cfg.ChunkSize = 2 * 1024 * 1024
	assert.Error(t, validateSharingOptions(&cfg))

	cfg = validConfig(t)
	cfg.Shared = "/does/not/exist"
	assert.Error(t, validateSharingOptions(&cfg))
}

func TestParseAndSetDebugLevels(t *testing.T) {
	require.NoError(t, parseAndSetDebugLevels("debug"))
	assert.Equal(t, btclog.LevelDebug, nodeLog.Level())

	require.NoError(t, parseAndSetDebugLevels("NODE=trace,PEER=warn"))
	assert.Equal(t, btclog.LevelTrace, nodeLog.Level())
	assert.Equal(t, btclog.LevelWarn, peerLog.Level())

	assert.Error(t, parseAndSetDebugLevels("loud"))
	assert.Error(t, parseAndSetDebugLevels("NOPE=info"))
	assert.Error(t, parseAndSetDebugLevels("NODE=info,PEER"))

	setLogLevels(defaultLogLevel)
}

func TestNodeConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Parallel = true
	require.NoError(t, validateNetworkOptions(&cfg))

	nc := cfg.nodeConfig(nil)
	assert.Equal(t, cfg.listenAddr, nc.Listen)
	assert.Equal(t, 4, nc.ChunkSize)
	assert.True(t, nc.ParallelDownloads)
	assert.Nil(t, nc.Proxy)

	cfg.Proxy = "127.0.0.1:9050"
	cfg.ProxyUser = "alice"
	nc = cfg.nodeConfig(nil)
	require.NotNil(t, nc.Proxy)
	assert.Equal(t, "127.0.0.1:9050", nc.Proxy.Addr)
	assert.Equal(t, "alice", nc.Proxy.Username)
}
