package node

import (
	"fmt"
	"time"

	"github.com/btcsuite/go-socks/socks"

	"github.com/VetheonGames/sharenode/pkg/chunkstore"
	"github.com/VetheonGames/sharenode/pkg/types"
)

const (
	DefaultChunkSize    = 64 * 1024
	DefaultMaxLineBytes = 1024 * 1024
	DefaultDialTimeout  = 3 * time.Second
	DefaultIOTimeout    = 10 * time.Second
	DefaultChunkTimeout = 5 * time.Second

	// lineOverhead covers everything in a FILE line besides the payload and
	// the file name
	lineOverhead = 128
)

// Config holds the settings of one node
type Config struct {
	// Listen is the address to bind. Port 0 picks a free port which then
	// becomes part of the node identity.
	Listen types.Addr

	// Neighbors seeds the directory. NeighborsFile, when set, is read with
	// peer.LoadNeighbors and appended.
	Neighbors     []types.Addr
	NeighborsFile string

	// SharedDir is served to LS and DL and receives downloads
	SharedDir string

	// Quota caps the bytes the shared directory may hold after a download.
	// 0 keeps the file manager default.
	Quota int64

	// ChunkSize is the default for downloads that do not name one
	ChunkSize int

	DialTimeout  time.Duration
	IOTimeout    time.Duration
	ChunkTimeout time.Duration
	MaxLineBytes int

	// ParallelDownloads fetches every download with the worker pool even
	// when the request does not ask for it
	ParallelDownloads bool

	// GossipInterval enables a periodic GET_PEERS round when positive
	GossipInterval time.Duration

	// ChunkStore caches fetched chunks. nil selects an in-memory store.
	ChunkStore chunkstore.Store

	// Proxy, when set, carries every outbound connection through a SOCKS5
	// proxy. Inbound connections are unaffected.
	Proxy *socks.Proxy
}

// DefaultConfig returns a config listening on 127.0.0.1 with a random port
func DefaultConfig() Config {
	return Config{
		Listen:       types.Addr{IP: "127.0.0.1"},
		SharedDir:    ".",
		ChunkSize:    DefaultChunkSize,
		DialTimeout:  DefaultDialTimeout,
		IOTimeout:    DefaultIOTimeout,
		ChunkTimeout: DefaultChunkTimeout,
		MaxLineBytes: DefaultMaxLineBytes,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Listen.IP == "" {
		c.Listen.IP = def.Listen.IP
	}
	if c.SharedDir == "" {
		c.SharedDir = def.SharedDir
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = def.IOTimeout
	}
	if c.ChunkTimeout == 0 {
		c.ChunkTimeout = def.ChunkTimeout
	}
	if c.MaxLineBytes == 0 {
		c.MaxLineBytes = def.MaxLineBytes
	}
	return c
}

// MaxChunkSize returns the largest chunk whose FILE line fits in
// maxLineBytes
func MaxChunkSize(maxLineBytes int) int {
	payload := maxLineBytes - lineOverhead - 255
	if payload <= 0 {
		return 0
	}
	// base64 turns every 3 bytes into 4
	return payload / 4 * 3
}

func validateChunkSize(size, maxLineBytes int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if max := MaxChunkSize(maxLineBytes); size > max {
		return fmt.Errorf("chunk size %d does not fit a %d byte line (max %d)", size, maxLineBytes, max)
	}
	return nil
}
