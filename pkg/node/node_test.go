package node

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/go-socks/socks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VetheonGames/sharenode/pkg/chunkstore"
	"github.com/VetheonGames/sharenode/pkg/types"
	"github.com/VetheonGames/sharenode/pkg/wire"
)

// newTestNode starts a node on a free loopback port sharing dir
func newTestNode(t *testing.T, dir string, neighbors ...types.Addr) *Node {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}

	cfg := DefaultConfig()
	cfg.SharedDir = dir
	cfg.Neighbors = neighbors
	cfg.DialTimeout = time.Second
	cfg.IOTimeout = 2 * time.Second
	cfg.ChunkTimeout = time.Second

	n, err := New(cfg)
	require.NoError(t, err)
	n.Start()
	t.Cleanup(func() {
		n.Stop()
		n.WaitForShutdown()
	})
	return n
}

func sharedDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

// unusedAddr returns a loopback address nothing listens on
func unusedAddr(t *testing.T) types.Addr {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return types.Addr{IP: "127.0.0.1", Port: uint16(port)}
}

func statusOf(n *Node, addr types.Addr) types.Status {
	nb, ok := n.peers.Get(addr)
	if !ok {
		return types.Status(-1)
	}
	return nb.Status
}

func TestNewBindsRandomPort(t *testing.T) {
	n := newTestNode(t, "")
	assert.Equal(t, "127.0.0.1", n.Self().IP)
	assert.NotZero(t, n.Self().Port)
	assert.Equal(t, DefaultChunkSize, n.ChunkSize())
}

func TestNewFailsOnBusyPort(t *testing.T) {
	a := newTestNode(t, "")

	cfg := DefaultConfig()
	cfg.Listen = a.Self()
	cfg.SharedDir = t.TempDir()
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewFailsOnBadNeighborsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neighbors.txt")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1:8002\nbogus\n"), 0644))

	cfg := DefaultConfig()
	cfg.SharedDir = t.TempDir()
	cfg.NeighborsFile = path
	_, err := New(cfg)
	assert.Error(t, err)

	cfg.NeighborsFile = filepath.Join(t.TempDir(), "missing.txt")
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNewLoadsNeighborsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neighbors.txt")
	require.NoError(t, os.WriteFile(path, []byte("# peers\n127.0.0.1:8002\n/ip4/127.0.0.1/tcp/8003\n"), 0644))

	cfg := DefaultConfig()
	cfg.SharedDir = t.TempDir()
	cfg.NeighborsFile = path
	n, err := New(cfg)
	require.NoError(t, err)
	defer n.Stop()

	neighbors := n.ListNeighbors()
	require.Len(t, neighbors, 2)
	for _, nb := range neighbors {
		assert.Equal(t, types.Offline, nb.Status)
		assert.Equal(t, uint64(0), nb.Clock)
	}
}

func TestHelloAndGetPeers(t *testing.T) {
	c := newTestNode(t, "")
	b := newTestNode(t, "", c.Self())
	a := newTestNode(t, "", b.Self())
	b.peers.AddBootstrap([]types.Addr{a.Self()})

	// HELLO marks the sender ONLINE on the receiver
	require.NoError(t, a.Hello(context.Background(), b.Self()))
	assert.Equal(t, types.Online, statusOf(a, b.Self()))
	require.Eventually(t, func() bool {
		return statusOf(b, a.Self()) == types.Online
	}, 2*time.Second, 10*time.Millisecond)

	// GET_PEERS teaches A about C, and never lists A itself
	report := a.GossipRound(context.Background())
	assert.Equal(t, []types.Addr{b.Self()}, report.Contacted)
	assert.Empty(t, report.Unreachable)

	_, known := a.peers.Get(c.Self())
	assert.True(t, known)
	_, self := a.peers.Get(a.Self())
	assert.False(t, self)

	// A's clock is past every clock it received
	nb, _ := a.peers.Get(b.Self())
	assert.Greater(t, a.Clock(), nb.Clock)
}

func TestGossipMarksUnreachableOffline(t *testing.T) {
	dead := unusedAddr(t)
	a := newTestNode(t, "", dead)
	a.peers.Upsert(dead, types.Online, 1)

	report := a.GossipRound(context.Background())
	assert.Equal(t, []types.Addr{dead}, report.Unreachable)
	assert.Equal(t, types.Offline, statusOf(a, dead))

	// The record keeps the neighbor's clock, not ours
	nb, _ := a.peers.Get(dead)
	assert.Equal(t, uint64(1), nb.Clock)

	// A neighbor never heard from goes OFFLINE at clock 0
	other := unusedAddr(t)
	require.Error(t, a.Hello(context.Background(), other))
	nb, ok := a.peers.Get(other)
	require.True(t, ok)
	assert.Equal(t, types.Offline, nb.Status)
	assert.Zero(t, nb.Clock)
}

// failingListener returns failures errors from Accept before delegating
type failingListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *failingListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: errors.New("too many open files")}
	}
	return l.Listener.Accept()
}

func TestAcceptErrorsDoNotStopNode(t *testing.T) {
	dir := sharedDir(t, map[string]string{"a.txt": testContent})
	cfg := DefaultConfig()
	cfg.SharedDir = dir
	b, err := New(cfg)
	require.NoError(t, err)

	flaky := &failingListener{Listener: b.listener}
	flaky.failures.Store(3)
	b.listener = flaky
	b.Start()
	t.Cleanup(func() {
		b.Stop()
		b.WaitForShutdown()
	})

	a := newTestNode(t, "")
	require.NoError(t, a.SendCommand(context.Background(), wire.Ls{}, b.Self(), true))
	assert.Len(t, a.ListRemoteFiles(), 1)
	assert.LessOrEqual(t, flaky.failures.Load(), int32(0))
}

func TestRawGetPeersReply(t *testing.T) {
	b := newTestNode(t, "", types.Addr{IP: "127.0.0.1", Port: 9001}, types.Addr{IP: "127.0.0.1", Port: 9999})

	conn, err := net.Dial("tcp", b.Self().Dial())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("127.0.0.1:9999 5 GET_PEERS\n"))
	require.NoError(t, err)

	line, err := readLine(conn, DefaultMaxLineBytes)
	require.NoError(t, err)
	msg, err := wire.Decode(line)
	require.NoError(t, err)

	assert.Equal(t, b.Self(), msg.From)
	assert.Greater(t, msg.Clock, uint64(5))

	list, ok := msg.Command.(wire.PeerList)
	require.True(t, ok)
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Peers, 1)
	assert.Equal(t, uint16(9001), list.Peers[0].Addr.Port)
}

func TestMalformedLineDropped(t *testing.T) {
	b := newTestNode(t, "")
	before := b.Clock()

	conn, err := net.Dial("tcp", b.Self().Dial())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("this is not a message\n"))
	require.NoError(t, err)

	// The node closes without replying
	_, err = readLine(conn, DefaultMaxLineBytes)
	assert.Error(t, err)
	assert.Equal(t, before, b.Clock())
	assert.Zero(t, b.peers.Len())
}

func TestHandleAntiFlicker(t *testing.T) {
	n := newTestNode(t, "")
	x := types.Addr{IP: "127.0.0.1", Port: 9100}

	n.handleMessage(&wire.Message{From: x, Clock: 10, Command: wire.Hello{}})
	assert.Equal(t, types.Online, statusOf(n, x))

	n.handleMessage(&wire.Message{From: x, Clock: 5, Command: wire.Bye{}})
	assert.Equal(t, types.Online, statusOf(n, x))

	n.handleMessage(&wire.Message{From: x, Clock: 11, Command: wire.Bye{}})
	assert.Equal(t, types.Offline, statusOf(n, x))
}

func TestHandleUnknownCommand(t *testing.T) {
	n := newTestNode(t, "")
	x := types.Addr{IP: "127.0.0.1", Port: 9100}

	reply := n.handleMessage(&wire.Message{From: x, Clock: 3, Command: wire.Unknown{Name: "PING"}})
	assert.Nil(t, reply)
	assert.Equal(t, uint64(4), n.Clock())
	assert.Equal(t, types.Online, statusOf(n, x))
}

func TestLeaveSendsBye(t *testing.T) {
	a := newTestNode(t, "")
	c := newTestNode(t, "", a.Self())

	require.NoError(t, c.Hello(context.Background(), a.Self()))
	require.Eventually(t, func() bool {
		return statusOf(a, c.Self()) == types.Online
	}, 2*time.Second, 10*time.Millisecond)

	c.Leave(context.Background())
	require.Eventually(t, func() bool {
		return statusOf(a, c.Self()) == types.Offline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendCommandErrors(t *testing.T) {
	a := newTestNode(t, "")
	b := newTestNode(t, "")

	err := a.SendCommand(context.Background(), wire.Hello{}, unusedAddr(t), false)
	assert.ErrorIs(t, err, ErrPeerUnreachable)

	// DL for a file B does not have gets no reply
	err = a.SendCommand(context.Background(), wire.Dl{Name: "nope.txt", ChunkSize: 4, Index: 0}, b.Self(), true)
	assert.ErrorIs(t, err, ErrNoResponse)

	// A peer answering garbage
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		readLine(conn, DefaultMaxLineBytes)
		conn.Write([]byte("garbage\n"))
	}()
	addr, err := types.ParseAddr(l.Addr().String())
	require.NoError(t, err)
	err = a.SendCommand(context.Background(), wire.GetPeers{}, addr, true)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestSendCommandThroughDeadProxy(t *testing.T) {
	b := newTestNode(t, "")

	cfg := DefaultConfig()
	cfg.SharedDir = t.TempDir()
	cfg.DialTimeout = time.Second
	cfg.Proxy = &socks.Proxy{Addr: unusedAddr(t).String()}
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Stop()

	err = a.SendCommand(context.Background(), wire.Hello{}, b.Self(), false)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}

func TestSendCommandAfterStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SharedDir = t.TempDir()
	n, err := New(cfg)
	require.NoError(t, err)
	n.Start()
	n.Stop()
	n.WaitForShutdown()

	err = n.SendCommand(context.Background(), wire.Hello{}, unusedAddr(t), false)
	assert.ErrorIs(t, err, ErrNodeStopped)
}

func TestSetChunkSize(t *testing.T) {
	n := newTestNode(t, "")
	require.NoError(t, n.SetChunkSize(4))
	assert.Equal(t, 4, n.ChunkSize())

	assert.Error(t, n.SetChunkSize(0))
	assert.Error(t, n.SetChunkSize(DefaultMaxLineBytes))
	assert.Equal(t, 4, n.ChunkSize())
}

func TestCustomChunkStore(t *testing.T) {
	store := chunkstore.NewMemStore(8)
	cfg := DefaultConfig()
	cfg.SharedDir = t.TempDir()
	cfg.ChunkStore = store
	n, err := New(cfg)
	require.NoError(t, err)
	defer n.Stop()

	x := types.Addr{IP: "127.0.0.1", Port: 9100}
	n.handleMessage(&wire.Message{From: x, Clock: 1, Command: wire.File{Name: "f", ChunkSize: 4, Index: 0, Data: []byte("abcd")}})
	assert.True(t, store.Has(chunkstore.Key{File: "f", ChunkSize: 4, Index: 0}))
}
