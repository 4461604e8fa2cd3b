package chunkstore

import "sync"

// MemStore keeps chunks in memory
type MemStore struct {
	chunks    map[Key][]byte
	totalSize uint64
	maxChunk  int
	mu        sync.RWMutex
}

// NewMemStore creates an in-memory store accepting chunks up to maxChunk bytes
func NewMemStore(maxChunk int) *MemStore {
	return &MemStore{
		chunks:   make(map[Key][]byte),
		maxChunk: maxChunk,
	}
}

// Put stores a copy of data
func (s *MemStore) Put(key Key, data []byte) error {
	if len(data) > s.maxChunk {
		return ErrChunkTooLarge
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.chunks[key]; exists {
		s.totalSize -= uint64(len(old))
	}
	s.chunks[key] = buf
	s.totalSize += uint64(len(buf))
	return nil
}

// Get retrieves a chunk from the store
func (s *MemStore) Get(key Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.chunks[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

func (s *MemStore) Has(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[key]
	return ok
}

// DropFile removes every chunk of file
func (s *MemStore) DropFile(file string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, data := range s.chunks {
		if key.File == file {
			s.totalSize -= uint64(len(data))
			delete(s.chunks, key)
			removed++
		}
	}
	return removed
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Size returns the number of bytes held
func (s *MemStore) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSize
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make(map[Key][]byte)
	s.totalSize = 0
	return nil
}
