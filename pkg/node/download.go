package node

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VetheonGames/sharenode/pkg/chunking"
	"github.com/VetheonGames/sharenode/pkg/chunkstore"
	"github.com/VetheonGames/sharenode/pkg/filemanager"
	"github.com/VetheonGames/sharenode/pkg/stats"
	"github.com/VetheonGames/sharenode/pkg/types"
	"github.com/VetheonGames/sharenode/pkg/wire"
)

// DownloadRequest names a remote file and the peers to fetch it from. Empty
// Peers means every location the registry knows for (Name, Size). ChunkSize
// 0 uses the node default.
type DownloadRequest struct {
	Name      string       `json:"name"`
	Size      int64        `json:"size"`
	Peers     []types.Addr `json:"peers,omitempty"`
	ChunkSize int          `json:"chunk_size,omitempty"`
	Parallel  bool         `json:"parallel,omitempty"`
}

// DownloadResult describes a finished download
type DownloadResult struct {
	SessionID   uuid.UUID     `json:"session_id"`
	Name        string        `json:"name"`
	Size        int64         `json:"size"`
	ChunkSize   int           `json:"chunk_size"`
	PeerCount   int           `json:"peer_count"`
	TotalChunks int           `json:"total_chunks"`
	Fetched     int           `json:"fetched"`
	Missing     []int         `json:"missing,omitempty"`
	Duration    time.Duration `json:"duration"`
	CID         string        `json:"cid,omitempty"`
	Path        string        `json:"path"`
}

// DownloadFile fetches every chunk of a remote file not already cached,
// reassembles it into the shared directory and records the timing. A file
// with missing chunks is still written, with holes, and the error wraps
// ErrIncomplete.
func (n *Node) DownloadFile(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if !filemanager.Shareable(req.Name) {
		return nil, fmt.Errorf("%w: %q", filemanager.ErrInvalidName, req.Name)
	}
	if req.Size < 0 {
		return nil, fmt.Errorf("invalid size %d", req.Size)
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = n.ChunkSize()
	}
	if err := validateChunkSize(chunkSize, n.cfg.MaxLineBytes); err != nil {
		return nil, err
	}

	peers := req.Peers
	if len(peers) == 0 {
		if entry, ok := n.registry.GetFile(req.Name, req.Size); ok {
			peers = entry.Locations
		}
	}

	plan, err := chunking.Plan(req.Size, chunkSize, peers)
	if err != nil {
		return nil, err
	}

	result := &DownloadResult{
		SessionID:   uuid.New(),
		Name:        req.Name,
		Size:        req.Size,
		ChunkSize:   chunkSize,
		PeerCount:   len(peers),
		TotalChunks: len(plan),
	}
	log.Infof("Download %s: %s (%d bytes) in %d chunks of %d from %d peers",
		result.SessionID, req.Name, req.Size, len(plan), chunkSize, len(peers))

	start := time.Now()

	var pending []chunking.Assignment
	for _, a := range plan {
		if !n.chunks.Has(n.chunkKey(req.Name, chunkSize, a.Index)) {
			pending = append(pending, a)
		}
	}

	if req.Parallel || n.cfg.ParallelDownloads {
		n.fetchParallel(ctx, result.SessionID, req.Name, chunkSize, pending, len(peers))
	} else {
		for _, a := range pending {
			n.fetchChunk(ctx, result.SessionID, req.Name, chunkSize, a)
		}
	}

	report, err := n.assemble(req.Name, req.Size, chunkSize)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	result.Missing = report.Missing
	result.Fetched = result.TotalChunks - len(report.Missing)

	if !report.Complete() {
		// The partial file stays hidden until a retry completes it
		result.Path, _ = n.files.PartialPath(req.Name)
		log.Warnf("Download %s: %s incomplete, missing chunks %v", result.SessionID, req.Name, report.Missing)
		return result, fmt.Errorf("%w: %s missing %d of %d chunks", ErrIncomplete, req.Name, len(report.Missing), result.TotalChunks)
	}

	result.Path, err = n.files.Commit(req.Name)
	if err != nil {
		return nil, err
	}

	if c, err := fingerprint(result.Path); err != nil {
		log.Errorf("Download %s: fingerprint: %v", result.SessionID, err)
	} else {
		result.CID = c
	}

	n.chunks.DropFile(req.Name)
	n.RecordStat(stats.Sample{
		File:      req.Name,
		FileSize:  req.Size,
		ChunkSize: chunkSize,
		PeerCount: len(peers),
		Duration:  result.Duration,
	})

	log.Infof("Download %s: %s complete in %v (%s)", result.SessionID, req.Name, result.Duration, result.CID)
	return result, nil
}

func (n *Node) chunkKey(name string, chunkSize, index int) chunkstore.Key {
	return chunkstore.Key{File: name, ChunkSize: chunkSize, Index: index}
}

// fetchChunk asks one peer for one chunk. Failures are logged and the chunk
// stays missing.
func (n *Node) fetchChunk(ctx context.Context, session uuid.UUID, name string, chunkSize int, a chunking.Assignment) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.ChunkTimeout)
	defer cancel()

	dl := wire.Dl{Name: name, ChunkSize: chunkSize, Index: a.Index}
	if err := n.SendCommand(ctx, dl, a.Peer, true); err != nil {
		log.Warnf("Download %s: chunk %d from %s failed: %v", session, a.Index, a.Peer, err)
		return
	}
	if !n.chunks.Has(n.chunkKey(name, chunkSize, a.Index)) {
		log.Warnf("Download %s: chunk %d from %s was not stored", session, a.Index, a.Peer)
	}
}

// fetchParallel runs one worker per peer over the pending chunks
func (n *Node) fetchParallel(ctx context.Context, session uuid.UUID, name string, chunkSize int, pending []chunking.Assignment, workerCount int) {
	if len(pending) < workerCount {
		workerCount = len(pending)
	}

	jobs := make(chan chunking.Assignment)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				n.fetchChunk(ctx, session, name, chunkSize, a)
			}
		}()
	}

	for _, a := range pending {
		select {
		case jobs <- a:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
}

// assemble writes the cached chunks of name into its partial file
func (n *Node) assemble(name string, size int64, chunkSize int) (chunking.Report, error) {
	f, err := n.files.CreatePartial(name, size)
	if err != nil {
		return chunking.Report{}, err
	}

	report, err := chunking.Reassemble(f, size, chunkSize, func(index int) ([]byte, bool) {
		return n.chunks.Get(n.chunkKey(name, chunkSize, index))
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", name, cerr)
	}
	return report, err
}

func fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	c, err := chunking.Fingerprint(f)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}
