package chunking

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/VetheonGames/sharenode/pkg/types"
)

// ErrNoPeers is returned by Plan when chunks exist but no peer can serve them
var ErrNoPeers = errors.New("no peers to download from")

// Assignment maps one chunk to the peer asked for it
type Assignment struct {
	Index int        `json:"index"`
	Peer  types.Addr `json:"peer"`
}

// TotalChunks returns ceil(size / chunkSize)
func TotalChunks(size int64, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	cs := int64(chunkSize)
	return int((size + cs - 1) / cs)
}

// ChunkLen returns the number of bytes chunk index covers in a file of size
func ChunkLen(size int64, chunkSize, index int) int {
	start := int64(index) * int64(chunkSize)
	if start >= size {
		return 0
	}
	if rest := size - start; rest < int64(chunkSize) {
		return int(rest)
	}
	return chunkSize
}

// Plan assigns chunk i to peers[i mod len(peers)]
func Plan(size int64, chunkSize int, peers []types.Addr) ([]Assignment, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	total := TotalChunks(size, chunkSize)
	if total > 0 && len(peers) == 0 {
		return nil, ErrNoPeers
	}

	plan := make([]Assignment, total)
	for i := range plan {
		plan[i] = Assignment{Index: i, Peer: peers[i%len(peers)]}
	}
	return plan, nil
}

// Report describes the outcome of a reassembly
type Report struct {
	Written int64 `json:"written"`
	Missing []int `json:"missing,omitempty"`
}

// Complete reports whether every chunk was written
func (r Report) Complete() bool {
	return len(r.Missing) == 0
}

// Reassemble writes chunk i of a size byte file at offset i*chunkSize in dst.
// fetch supplies the chunks. A chunk that is absent, or whose length does not
// match its place in the file, is left as a hole and listed in Missing.
func Reassemble(dst io.WriterAt, size int64, chunkSize int, fetch func(index int) ([]byte, bool)) (Report, error) {
	var report Report
	if chunkSize <= 0 {
		return report, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	total := TotalChunks(size, chunkSize)
	for i := 0; i < total; i++ {
		data, ok := fetch(i)
		if !ok || len(data) != ChunkLen(size, chunkSize, i) {
			report.Missing = append(report.Missing, i)
			continue
		}

		if _, err := dst.WriteAt(data, int64(i)*int64(chunkSize)); err != nil {
			return report, fmt.Errorf("failed to write chunk %d: %w", i, err)
		}
		report.Written += int64(len(data))
	}
	return report, nil
}

// Fingerprint returns the CIDv1 (raw codec, sha2-256) of the bytes read from r
func Fingerprint(r io.Reader) (cid.Cid, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return cid.Undef, fmt.Errorf("failed to hash content: %w", err)
	}

	digest, err := mh.Encode(h.Sum(nil), mh.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, digest), nil
}
