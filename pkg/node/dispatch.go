package node

import (
	"errors"

	"github.com/VetheonGames/sharenode/pkg/chunkstore"
	"github.com/VetheonGames/sharenode/pkg/filemanager"
	"github.com/VetheonGames/sharenode/pkg/types"
	"github.com/VetheonGames/sharenode/pkg/wire"
)

// handleMessage applies a received message to the node state and returns the
// reply to send back, or nil. The clock is merged and the sender touched
// before the command runs.
func (n *Node) handleMessage(msg *wire.Message) wire.Command {
	n.clock.Observe(msg.Clock)
	n.peers.Touch(msg.From, msg.Clock)

	log.Debugf("Received %s from %s at clock %d", msg.Command.Type(), msg.From, msg.Clock)

	switch cmd := msg.Command.(type) {
	case wire.Hello:
		n.peers.Upsert(msg.From, types.Online, msg.Clock)

	case wire.GetPeers:
		return n.handleGetPeers(msg.From)

	case wire.PeerList:
		n.handlePeerList(msg.From, msg.Clock, cmd)

	case wire.Bye:
		n.peers.Upsert(msg.From, types.Offline, msg.Clock)

	case wire.Ls:
		return n.handleLs()

	case wire.LsList:
		n.handleLsList(msg.From, cmd)

	case wire.Dl:
		return n.handleDl(msg.From, cmd)

	case wire.File:
		n.handleFile(msg.From, cmd)

	default:
		log.Debugf("Ignoring %s from %s", msg.Command.Type(), msg.From)
	}
	return nil
}

func (n *Node) handleGetPeers(from types.Addr) wire.Command {
	neighbors := n.peers.List(from)
	list := wire.PeerList{Peers: make([]wire.PeerEntry, 0, len(neighbors))}
	for _, nb := range neighbors {
		list.Peers = append(list.Peers, wire.PeerEntry{Addr: nb.Addr, Status: nb.Status, Clock: nb.Clock})
	}
	list.Count = len(list.Peers)
	return list
}

func (n *Node) handlePeerList(from types.Addr, clock uint64, list wire.PeerList) {
	n.peers.Upsert(from, types.Online, clock)

	if list.Skipped > 0 {
		log.Warnf("Skipped %d malformed entries in PEER_LIST from %s", list.Skipped, from)
	}
	for _, entry := range list.Peers {
		if entry.Addr == n.self {
			continue
		}
		n.peers.Upsert(entry.Addr, entry.Status, entry.Clock)
	}
}

func (n *Node) handleLs() wire.Command {
	files, err := n.files.List()
	if err != nil {
		log.Errorf("Listing shared files: %v", err)
	}

	list := wire.LsList{Files: make([]wire.FileEntry, 0, len(files))}
	for _, f := range files {
		list.Files = append(list.Files, wire.FileEntry{Name: f.Name, Size: f.Size, Location: n.self})
	}
	list.Count = len(list.Files)
	return list
}

func (n *Node) handleLsList(from types.Addr, list wire.LsList) {
	if list.Skipped > 0 {
		log.Warnf("Skipped %d malformed entries in LS_LIST from %s", list.Skipped, from)
	}
	added := 0
	for _, f := range list.Files {
		if n.registry.Merge(f.Name, f.Size, f.Location) {
			added++
		}
	}
	log.Debugf("LS_LIST from %s: %d files, %d new locations", from, len(list.Files), added)
}

func (n *Node) handleDl(from types.Addr, dl wire.Dl) wire.Command {
	if err := validateChunkSize(dl.ChunkSize, n.cfg.MaxLineBytes); err != nil {
		log.Warnf("DL from %s: %v", from, err)
		return nil
	}

	data, err := n.files.ReadChunk(dl.Name, dl.ChunkSize, dl.Index)
	if err != nil {
		if errors.Is(err, filemanager.ErrFileNotFound) || errors.Is(err, filemanager.ErrInvalidName) {
			log.Warnf("DL from %s: file %q not found", from, dl.Name)
		} else {
			log.Errorf("DL from %s: %v", from, err)
		}
		return nil
	}

	return wire.File{Name: dl.Name, ChunkSize: dl.ChunkSize, Index: dl.Index, Data: data}
}

func (n *Node) handleFile(from types.Addr, f wire.File) {
	key := chunkstore.Key{File: f.Name, ChunkSize: f.ChunkSize, Index: f.Index}
	if err := n.chunks.Put(key, f.Data); err != nil {
		log.Errorf("Storing chunk %s from %s: %v", key, from, err)
		return
	}
	log.Tracef("Stored chunk %s (%d bytes) from %s", key, len(f.Data), from)
}
