package chunkstore

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore keeps chunks in a leveldb database. Each store lives in a fresh
// directory of its own under the cache dir and starts empty.
type LevelStore struct {
	db       *leveldb.DB
	path     string
	maxChunk int
}

// OpenLevelStore creates a new database in a private directory under dir.
// Nothing else in dir is touched.
func OpenLevelStore(dir string, maxChunk int) (*LevelStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("leveldb chunk cache needs a directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create chunk cache dir %s: %w", dir, err)
	}
	path, err := os.MkdirTemp(dir, "chunks-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk cache in %s: %w", dir, err)
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		os.RemoveAll(path)
		return nil, fmt.Errorf("failed to open chunk cache %s: %w", path, err)
	}
	log.Infof("Chunk cache opened at %s", path)

	return &LevelStore{db: db, path: path, maxChunk: maxChunk}, nil
}

// Path returns the private directory of the database
func (s *LevelStore) Path() string {
	return s.path
}

// filePrefix is the key prefix shared by every chunk of file
func filePrefix(file string) []byte {
	buf := make([]byte, 0, len(file)+1)
	buf = append(buf, file...)
	return append(buf, 0)
}

func encodeKey(key Key) []byte {
	buf := filePrefix(key.File)
	buf = binary.BigEndian.AppendUint64(buf, uint64(key.ChunkSize))
	return binary.BigEndian.AppendUint64(buf, uint64(key.Index))
}

func (s *LevelStore) Put(key Key, data []byte) error {
	if len(data) > s.maxChunk {
		return ErrChunkTooLarge
	}
	if err := s.db.Put(encodeKey(key), data, nil); err != nil {
		return fmt.Errorf("failed to store chunk %s: %w", key, err)
	}
	return nil
}

func (s *LevelStore) Get(key Key) ([]byte, bool) {
	data, err := s.db.Get(encodeKey(key), nil)
	if err != nil {
		if err != leveldb.ErrNotFound {
			log.Errorf("Failed to read chunk %s: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

func (s *LevelStore) Has(key Key) bool {
	ok, err := s.db.Has(encodeKey(key), nil)
	if err != nil {
		log.Errorf("Failed to look up chunk %s: %v", key, err)
		return false
	}
	return ok
}

func (s *LevelStore) DropFile(file string) int {
	iter := s.db.NewIterator(util.BytesPrefix(filePrefix(file)), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		log.Errorf("Failed to scan chunks of %s: %v", file, err)
		return 0
	}

	if err := s.db.Write(batch, nil); err != nil {
		log.Errorf("Failed to drop chunks of %s: %v", file, err)
		return 0
	}
	return batch.Len()
}

func (s *LevelStore) Len() int {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	return n
}

// Size returns the number of chunk bytes held
func (s *LevelStore) Size() uint64 {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var total uint64
	for iter.Next() {
		total += uint64(len(iter.Value()))
	}
	return total
}

// Close closes the database and removes its private directory
func (s *LevelStore) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.path)
}
