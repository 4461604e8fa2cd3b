package peer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VetheonGames/sharenode/pkg/types"
)

func TestLoadNeighbors(t *testing.T) {
	input := `# bootstrap
127.0.0.1:8002

/ip4/127.0.0.1/tcp/8003
  10.1.2.3:9000  
`
	addrs, err := LoadNeighbors(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []types.Addr{
		{IP: "127.0.0.1", Port: 8002},
		{IP: "127.0.0.1", Port: 8003},
		{IP: "10.1.2.3", Port: 9000},
	}, addrs)
}

func TestLoadNeighborsRejectsGarbage(t *testing.T) {
	_, err := LoadNeighbors(strings.NewReader("127.0.0.1:8002\nnot-an-address\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = LoadNeighbors(strings.NewReader("/ip4/127.0.0.1/udp/8002\n"))
	assert.Error(t, err)
}

func TestLoadNeighborsEmpty(t *testing.T) {
	addrs, err := LoadNeighbors(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestMultiaddrRoundTrip(t *testing.T) {
	ma, err := Multiaddr(types.Addr{IP: "127.0.0.1", Port: 8002})
	require.NoError(t, err)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/8002", ma.String())

	addr, err := AddrFromMultiaddr(ma.String())
	require.NoError(t, err)
	assert.Equal(t, types.Addr{IP: "127.0.0.1", Port: 8002}, addr)

	ma, err = Multiaddr(types.Addr{IP: "::1", Port: 9000})
	require.NoError(t, err)
	assert.Equal(t, "/ip6/::1/tcp/9000", ma.String())
}
