package node

import (
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/VetheonGames/sharenode/pkg/chunkstore"
	"github.com/VetheonGames/sharenode/pkg/filemanager"
	"github.com/VetheonGames/sharenode/pkg/lamport"
	"github.com/VetheonGames/sharenode/pkg/peer"
	"github.com/VetheonGames/sharenode/pkg/registry"
	"github.com/VetheonGames/sharenode/pkg/stats"
	"github.com/VetheonGames/sharenode/pkg/types"
)

// Node is one participant of the network. It owns its clock, neighbor
// directory, remote file index, chunk cache and download statistics.
type Node struct {
	cfg      Config
	self     types.Addr
	listener net.Listener

	clock    *lamport.Clock
	peers    *peer.Manager
	files    *filemanager.Manager
	registry *registry.FileRegistry
	chunks   chunkstore.Store
	stats    *stats.Recorder

	chunkSize atomic.Int64

	stateMutex sync.Mutex
	started    bool
	shutdown   bool
	wg         sync.WaitGroup
	quit       chan struct{}
}

// New binds the listening socket and builds the node. The node does not
// accept connections until Start.
func New(cfg Config) (*Node, error) {
	cfg = cfg.withDefaults()
	if err := validateChunkSize(cfg.ChunkSize, cfg.MaxLineBytes); err != nil {
		return nil, err
	}

	neighbors := append([]types.Addr(nil), cfg.Neighbors...)
	if cfg.NeighborsFile != "" {
		loaded, err := loadNeighborsFile(cfg.NeighborsFile)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, loaded...)
	}

	files := filemanager.NewManager(cfg.SharedDir)
	if err := files.VerifyAccess(false); err != nil {
		return nil, fmt.Errorf("shared directory: %w", err)
	}
	if cfg.Quota > 0 {
		files.SetQuota(cfg.Quota)
	}

	listener, err := net.Listen("tcp", cfg.Listen.Dial())
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", cfg.Listen, err)
	}

	self := cfg.Listen
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		self.Port = uint16(tcpAddr.Port)
	}

	chunks := cfg.ChunkStore
	if chunks == nil {
		chunks = chunkstore.NewMemStore(chunkstore.DefaultMaxChunkBytes)
	}

	n := &Node{
		cfg:      cfg,
		self:     self,
		listener: listener,
		clock:    lamport.New(0),
		peers:    peer.NewManager(self),
		files:    files,
		registry: registry.NewFileRegistry(),
		chunks:   chunks,
		stats:    stats.NewRecorder(),
		quit:     make(chan struct{}),
	}
	n.chunkSize.Store(int64(cfg.ChunkSize))
	n.peers.AddBootstrap(neighbors)

	log.Infof("Node %s created with %d neighbors, sharing %s", self, n.peers.Len(), cfg.SharedDir)
	return n, nil
}

func loadNeighborsFile(path string) ([]types.Addr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open neighbors file: %w", err)
	}
	defer f.Close()

	addrs, err := peer.LoadNeighbors(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return addrs, nil
}

// Self returns the address the node listens on and stamps on messages
func (n *Node) Self() types.Addr {
	return n.self
}

// Clock returns the current Lamport clock value
func (n *Node) Clock() uint64 {
	return n.clock.Value()
}

// ChunkSize returns the default chunk size for downloads
func (n *Node) ChunkSize() int {
	return int(n.chunkSize.Load())
}

// SetChunkSize changes the default chunk size for later downloads
func (n *Node) SetChunkSize(size int) error {
	if err := validateChunkSize(size, n.cfg.MaxLineBytes); err != nil {
		return err
	}
	n.chunkSize.Store(int64(size))
	log.Infof("Default chunk size set to %d", size)
	return nil
}

// ListNeighbors returns the neighbor directory sorted by address
func (n *Node) ListNeighbors() []peer.Neighbor {
	return n.peers.List()
}

// ListRemoteFiles returns the files advertised by neighbors
func (n *Node) ListRemoteFiles() []registry.Entry {
	return n.registry.ListFiles()
}

// ListLocalFiles returns the files of the shared directory
func (n *Node) ListLocalFiles() ([]filemanager.FileInfo, error) {
	return n.files.List()
}

// LocalFile returns the size of one shared file
func (n *Node) LocalFile(name string) (filemanager.FileInfo, error) {
	return n.files.Stat(name)
}

// CacheStats reports how many chunks and bytes wait in the chunk cache
func (n *Node) CacheStats() (int, uint64) {
	return n.chunks.Len(), n.chunks.Size()
}

// RecordStat adds a download timing sample
func (n *Node) RecordStat(s stats.Sample) {
	n.stats.Record(s)
}

// StatsSummary aggregates the recorded samples
func (n *Node) StatsSummary() []stats.Summary {
	return n.stats.Summarize()
}
