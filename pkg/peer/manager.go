package peer

import (
	"sort"
	"sync"
	"time"

	"github.com/VetheonGames/sharenode/pkg/types"
)

// Manager is the node's view of its neighbors and their liveness
type Manager struct {
	self  types.Addr
	peers map[types.Addr]*Neighbor
	mu    sync.RWMutex
}

// Neighbor is the last known state of one peer
type Neighbor struct {
	Addr     types.Addr   `json:"addr"`
	Status   types.Status `json:"status"`
	Clock    uint64       `json:"clock"`
	LastSeen time.Time    `json:"last_seen,omitempty"`
}

// NewManager creates a directory for the node at self. Records for self are
// never stored.
func NewManager(self types.Addr) *Manager {
	return &Manager{
		self:  self,
		peers: make(map[types.Addr]*Neighbor),
	}
}

// AddBootstrap inserts addrs as OFFLINE at clock 0. Known addresses are left
// alone.
func (m *Manager) AddBootstrap(addrs []types.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, addr := range addrs {
		if addr == m.self {
			continue
		}
		if _, exists := m.peers[addr]; !exists {
			m.peers[addr] = &Neighbor{Addr: addr, Status: types.Offline}
		}
	}
}

// Upsert merges a status report for addr and reports whether the record
// changed. ONLINE always wins. OFFLINE only applies when its clock is at
// least the recorded one, so a stale departure cannot flip a live peer.
func (m *Manager) Upsert(addr types.Addr, status types.Status, clock uint64) bool {
	if addr == m.self {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, exists := m.peers[addr]
	if !exists {
		m.peers[addr] = &Neighbor{Addr: addr, Status: status, Clock: clock}
		log.Debugf("New neighbor %s (%s, clock %d)", addr, status, clock)
		return true
	}

	if status == types.Offline && clock < n.Clock {
		log.Tracef("Ignoring stale OFFLINE for %s at %d (have %d)", addr, clock, n.Clock)
		return false
	}

	changed := n.Status != status || n.Clock != clock
	if n.Status != status {
		log.Infof("Neighbor %s is now %s", addr, status)
	}
	n.Status = status
	n.Clock = clock
	return changed
}

// Touch records that a message from addr carrying clock was received. A known
// record only has its clock raised. An unknown sender is added as ONLINE.
func (m *Manager) Touch(addr types.Addr, clock uint64) {
	if addr == m.self {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, exists := m.peers[addr]
	if !exists {
		n = &Neighbor{Addr: addr, Status: types.Online, Clock: clock}
		m.peers[addr] = n
		log.Debugf("New neighbor %s seen on the wire", addr)
	}
	if clock > n.Clock {
		n.Clock = clock
	}
	n.LastSeen = time.Now()
}

// Get retrieves the record for addr
func (m *Manager) Get(addr types.Addr) (Neighbor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, exists := m.peers[addr]
	if !exists {
		return Neighbor{}, false
	}
	return *n, true
}

// List returns a copy of every record except the excluded addresses, sorted
// by address
func (m *Manager) List(exclude ...types.Addr) []Neighbor {
	m.mu.RLock()
	result := make([]Neighbor, 0, len(m.peers))
	for addr, n := range m.peers {
		if containsAddr(exclude, addr) {
			continue
		}
		result = append(result, *n)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Addr.Less(result[j].Addr)
	})
	return result
}

// Online returns the ONLINE records sorted by address
func (m *Manager) Online() []Neighbor {
	all := m.List()
	online := all[:0]
	for _, n := range all {
		if n.Status == types.Online {
			online = append(online, n)
		}
	}
	return online
}

// Len returns the number of known neighbors
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

func containsAddr(list []types.Addr, addr types.Addr) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
