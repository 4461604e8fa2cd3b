// Package chunkstore holds the chunks fetched during a download until the
// file is reassembled. Contents never survive a restart.
package chunkstore

import (
	"errors"
	"fmt"
)

// DefaultMaxChunkBytes bounds a single chunk when no limit is configured
const DefaultMaxChunkBytes = 64 * 1024 * 1024

// ErrChunkTooLarge is returned by Put for chunks above the store limit
var ErrChunkTooLarge = errors.New("chunk exceeds size limit")

// Key identifies one chunk of one file cut at one chunk size
type Key struct {
	File      string
	ChunkSize int
	Index     int
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%d/%d]", k.File, k.Index, k.ChunkSize)
}

// Store is a chunk cache. Implementations are safe for concurrent use.
type Store interface {
	// Put stores data under key, replacing any previous value
	Put(key Key, data []byte) error
	// Get returns a copy of the chunk stored under key
	Get(key Key) ([]byte, bool)
	Has(key Key) bool
	// DropFile removes every chunk of file and returns how many were removed
	DropFile(file string) int
	Len() int
	// Size returns the number of chunk bytes held
	Size() uint64
	Close() error
}

// Kinds accepted by Open
const (
	KindMemory  = "memory"
	KindLevelDB = "leveldb"
)

// Open creates the store selected by kind. dir is only used by the leveldb
// store. maxChunk <= 0 selects DefaultMaxChunkBytes.
func Open(kind, dir string, maxChunk int) (Store, error) {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunkBytes
	}
	switch kind {
	case "", KindMemory:
		return NewMemStore(maxChunk), nil
	case KindLevelDB:
		return OpenLevelStore(dir, maxChunk)
	default:
		return nil, fmt.Errorf("unknown chunk cache %q", kind)
	}
}
