package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	addr, err := ParseAddr("127.0.0.1:8001")
	require.NoError(t, err)
	assert.Equal(t, Addr{IP: "127.0.0.1", Port: 8001}, addr)
	assert.Equal(t, "127.0.0.1:8001", addr.String())

	for _, bad := range []string{"", "127.0.0.1", ":8001", "127.0.0.1:", "127.0.0.1:0", "127.0.0.1:70000", "host:abc"} {
		_, err := ParseAddr(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddrDialIPv6(t *testing.T) {
	addr := Addr{IP: "::1", Port: 9000}
	assert.Equal(t, "[::1]:9000", addr.Dial())
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{Online, Offline} {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStatus("AWAY")
	assert.Error(t, err)
}
