package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VetheonGames/sharenode/pkg/types"
)

var (
	peerA = types.Addr{IP: "127.0.0.1", Port: 8002}
	peerB = types.Addr{IP: "127.0.0.1", Port: 8003}
)

func TestMergeDeduplicates(t *testing.T) {
	fr := NewFileRegistry()

	assert.True(t, fr.Merge("a.txt", 10, peerB))
	assert.True(t, fr.Merge("a.txt", 10, peerA))
	assert.False(t, fr.Merge("a.txt", 10, peerA))

	entry, ok := fr.GetFile("a.txt", 10)
	require.True(t, ok)
	assert.Equal(t, []types.Addr{peerA, peerB}, entry.Locations)
	assert.Equal(t, 1, fr.Len())
}

func TestSameNameDifferentSize(t *testing.T) {
	fr := NewFileRegistry()
	fr.Merge("a.txt", 10, peerA)
	fr.Merge("a.txt", 11, peerA)

	files := fr.ListFiles()
	require.Len(t, files, 2)
	assert.Equal(t, int64(10), files[0].Size)
	assert.Equal(t, int64(11), files[1].Size)
}

func TestListReturnsCopies(t *testing.T) {
	fr := NewFileRegistry()
	fr.Merge("a.txt", 10, peerA)

	files := fr.ListFiles()
	files[0].Locations[0] = peerB

	entry, _ := fr.GetFile("a.txt", 10)
	assert.Equal(t, peerA, entry.Locations[0])
}
