package chunking

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/VetheonGames/sharenode/pkg/types"
)

// writerAt is an in-memory io.WriterAt for a fixed size file
type writerAt []byte

func (w writerAt) WriteAt(p []byte, off int64) (int, error) {
	return copy(w[off:], p), nil
}

func testPeers(n int) []types.Addr {
	peers := make([]types.Addr, n)
	for i := range peers {
		peers[i] = types.Addr{IP: "127.0.0.1", Port: uint16(8002 + i)}
	}
	return peers
}

func TestTotalChunks(t *testing.T) {
	assert.Equal(t, 3, TotalChunks(10, 4))
	assert.Equal(t, 2, TotalChunks(8, 4))
	assert.Equal(t, 1, TotalChunks(1, 4))
	assert.Equal(t, 0, TotalChunks(0, 4))
	assert.Equal(t, 0, TotalChunks(10, 0))
}

func TestChunkLen(t *testing.T) {
	assert.Equal(t, 4, ChunkLen(10, 4, 0))
	assert.Equal(t, 4, ChunkLen(10, 4, 1))
	assert.Equal(t, 2, ChunkLen(10, 4, 2))
	assert.Equal(t, 0, ChunkLen(10, 4, 3))
}

func TestPlanRoundRobin(t *testing.T) {
	peers := testPeers(2)
	plan, err := Plan(10, 4, peers)
	require.NoError(t, err)
	assert.Equal(t, []Assignment{
		{Index: 0, Peer: peers[0]},
		{Index: 1, Peer: peers[1]},
		{Index: 2, Peer: peers[0]},
	}, plan)

	_, err = Plan(10, 4, nil)
	assert.ErrorIs(t, err, ErrNoPeers)

	plan, err = Plan(0, 4, nil)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestPlanProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.Int64Range(0, 10000).Draw(t, "size")
		chunkSize := rapid.IntRange(1, 512).Draw(t, "chunkSize")
		peers := testPeers(rapid.IntRange(1, 6).Draw(t, "peers"))

		plan, err := Plan(size, chunkSize, peers)
		if err != nil {
			t.Fatal(err)
		}
		if len(plan) != TotalChunks(size, chunkSize) {
			t.Fatalf("plan has %d chunks", len(plan))
		}
		for i, a := range plan {
			if a.Index != i || a.Peer != peers[i%len(peers)] {
				t.Fatalf("chunk %d assigned to %v", i, a.Peer)
			}
		}
	})
}

func TestReassembleComplete(t *testing.T) {
	content := []byte("abcdefghij")
	chunks := map[int][]byte{0: []byte("abcd"), 1: []byte("efgh"), 2: []byte("ij")}

	out := make(writerAt, len(content))
	report, err := Reassemble(out, int64(len(content)), 4, func(i int) ([]byte, bool) {
		data, ok := chunks[i]
		return data, ok
	})
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Equal(t, int64(10), report.Written)
	assert.Equal(t, content, []byte(out))
}

func TestReassembleLeavesHoles(t *testing.T) {
	chunks := map[int][]byte{0: []byte("abcd"), 2: []byte("ij")}

	out := make(writerAt, 10)
	report, err := Reassemble(out, 10, 4, func(i int) ([]byte, bool) {
		data, ok := chunks[i]
		return data, ok
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, report.Missing)
	assert.Equal(t, []byte("abcd\x00\x00\x00\x00ij"), []byte(out))
}

func TestReassembleRejectsWrongLength(t *testing.T) {
	out := make(writerAt, 10)
	report, err := Reassemble(out, 10, 4, func(i int) ([]byte, bool) {
		return []byte("xyz"), true
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, report.Missing)
}

func TestReassembleAnyOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.SliceOfN(rapid.Byte(), 0, 2048).Draw(t, "content")
		chunkSize := rapid.IntRange(1, 300).Draw(t, "chunkSize")
		size := int64(len(content))

		// Fetch order and source peer do not matter to the result
		total := TotalChunks(size, chunkSize)
		order := rapid.Permutation(seq(total)).Draw(t, "order")
		chunks := make(map[int][]byte, total)
		for _, i := range order {
			start := i * chunkSize
			chunks[i] = content[start : start+ChunkLen(size, chunkSize, i)]
		}

		out := make(writerAt, len(content))
		report, err := Reassemble(out, size, chunkSize, func(i int) ([]byte, bool) {
			data, ok := chunks[i]
			return data, ok
		})
		if err != nil {
			t.Fatal(err)
		}
		if !report.Complete() || !bytes.Equal(content, out) {
			t.Fatalf("reassembled file differs (missing %v)", report.Missing)
		}
	})
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("abcdefghij"), 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	c, err := Fingerprint(f)
	require.NoError(t, err)

	want, err := mh.Sum([]byte("abcdefghij"), mh.SHA2_256, -1)
	require.NoError(t, err)
	assert.Equal(t, want, c.Hash())
	assert.Equal(t, uint64(0x55), c.Type())
}
