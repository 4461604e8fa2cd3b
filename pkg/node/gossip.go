package node

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/VetheonGames/sharenode/pkg/peer"
	"github.com/VetheonGames/sharenode/pkg/types"
	"github.com/VetheonGames/sharenode/pkg/wire"
)

// GossipReport lists the outcome of a round of requests to neighbors
type GossipReport struct {
	Contacted   []types.Addr `json:"contacted"`
	Unreachable []types.Addr `json:"unreachable"`
}

// Hello announces the node to one neighbor. The neighbor is marked ONLINE if
// the message was delivered and OFFLINE if it could not be reached.
func (n *Node) Hello(ctx context.Context, to types.Addr) error {
	err := n.SendCommand(ctx, wire.Hello{}, to, false)
	n.markReachability(to, err)
	return err
}

// GossipRound sends GET_PEERS to every known neighbor and merges the replies
func (n *Node) GossipRound(ctx context.Context) GossipReport {
	return n.broadcast(ctx, n.peers.List(), wire.GetPeers{})
}

// DiscoverFiles sends LS to every ONLINE neighbor, filling the remote file
// index
func (n *Node) DiscoverFiles(ctx context.Context) GossipReport {
	return n.broadcast(ctx, n.peers.Online(), wire.Ls{})
}

// Leave sends BYE to every ONLINE neighbor
func (n *Node) Leave(ctx context.Context) {
	online := n.peers.Online()
	for _, nb := range online {
		if err := n.SendCommand(ctx, wire.Bye{}, nb.Addr, false); err != nil {
			log.Debugf("BYE to %s failed: %v", nb.Addr, err)
		}
	}
	log.Infof("Said goodbye to %d neighbors", len(online))
}

// broadcast sends cmd to every target concurrently and waits for the replies
func (n *Node) broadcast(ctx context.Context, targets []peer.Neighbor, cmd wire.Command) GossipReport {
	var (
		report GossipReport
		mu     sync.Mutex
		wg     sync.WaitGroup
	)
	expect := wire.ExpectsReply(cmd)

	for _, nb := range targets {
		wg.Add(1)
		go func(addr types.Addr) {
			defer wg.Done()

			err := n.SendCommand(ctx, cmd, addr, expect)
			n.markReachability(addr, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Debugf("%s to %s failed: %v", cmd.Type(), addr, err)
				report.Unreachable = append(report.Unreachable, addr)
				return
			}
			report.Contacted = append(report.Contacted, addr)
		}(nb.Addr)
	}
	wg.Wait()

	sortAddrs(report.Contacted)
	sortAddrs(report.Unreachable)
	log.Infof("%s round: %d contacted, %d unreachable", cmd.Type(), len(report.Contacted), len(report.Unreachable))
	return report
}

// markReachability records the result of a send. The record keeps the
// last clock heard from the neighbor either way, so only the neighbor's own
// clock values are ever passed on in PEER_LIST.
func (n *Node) markReachability(addr types.Addr, err error) {
	nb, known := n.peers.Get(addr)
	switch {
	case err == nil:
		if !known || nb.Status != types.Online {
			n.peers.Upsert(addr, types.Online, nb.Clock)
		}
	case errors.Is(err, ErrPeerUnreachable):
		n.peers.Upsert(addr, types.Offline, nb.Clock)
	}
}

// startGossiping runs GossipRound every GossipInterval until Stop
func (n *Node) startGossiping() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.GossipInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-n.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			n.GossipRound(ctx)
		}
	}
}

func sortAddrs(addrs []types.Addr) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
}
