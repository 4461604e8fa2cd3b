// Package wire implements the line protocol spoken between nodes.
//
// Every message is a single line of space separated fields:
//
//	<ip>:<port> <clock> <TYPE> [args...]\n
//
// The first field is the sender, the second its Lamport clock at send time and
// the third selects the command. Each command is its own Go type so that a
// decoded message is either fully valid or rejected with ErrMalformed.
package wire

import (
	"errors"

	"github.com/VetheonGames/sharenode/pkg/types"
)

// CommandType is the TYPE token of a message
type CommandType string

const (
	TypeHello    CommandType = "HELLO"
	TypeGetPeers CommandType = "GET_PEERS"
	TypePeerList CommandType = "PEER_LIST"
	TypeBye      CommandType = "BYE"
	TypeLs       CommandType = "LS"
	TypeLsList   CommandType = "LS_LIST"
	TypeDl       CommandType = "DL"
	TypeFile     CommandType = "FILE"
)

// ErrMalformed is returned by Decode for lines that do not follow the grammar
var ErrMalformed = errors.New("malformed message")

// Message is a decoded protocol line
type Message struct {
	From    types.Addr
	Clock   uint64
	Command Command
}

// Command is one of the concrete command types in this package
type Command interface {
	Type() CommandType
	args() []string
}

// Hello announces that the sender is online. No reply.
type Hello struct{}

// GetPeers asks for the receiver's neighbor list. Reply: PeerList.
type GetPeers struct{}

// PeerEntry is one neighbor in a PEER_LIST
type PeerEntry struct {
	Addr   types.Addr
	Status types.Status
	Clock  uint64
}

// PeerList answers GetPeers. Skipped counts entries dropped while decoding.
type PeerList struct {
	Count   int
	Peers   []PeerEntry
	Skipped int
}

// Bye announces that the sender is leaving. No reply.
type Bye struct{}

// Ls asks for the receiver's shared files. Reply: LsList.
type Ls struct{}

// FileEntry is one shared file in an LS_LIST
type FileEntry struct {
	Name     string
	Size     int64
	Location types.Addr
}

// LsList answers Ls. Skipped counts entries dropped while decoding.
type LsList struct {
	Count   int
	Files   []FileEntry
	Skipped int
}

// Dl requests chunk Index of Name cut at ChunkSize bytes. Reply: File.
type Dl struct {
	Name      string
	ChunkSize int
	Index     int
}

// File carries the bytes of one chunk
type File struct {
	Name      string
	ChunkSize int
	Index     int
	Data      []byte
}

// Unknown holds a command type this node does not implement
type Unknown struct {
	Name string
	Args []string
}

func (Hello) Type() CommandType    { return TypeHello }
func (GetPeers) Type() CommandType { return TypeGetPeers }
func (PeerList) Type() CommandType { return TypePeerList }
func (Bye) Type() CommandType      { return TypeBye }
func (Ls) Type() CommandType       { return TypeLs }
func (LsList) Type() CommandType   { return TypeLsList }
func (Dl) Type() CommandType       { return TypeDl }
func (File) Type() CommandType     { return TypeFile }
func (u Unknown) Type() CommandType {
	return CommandType(u.Name)
}

// ExpectsReply reports whether the receiver answers this command on the
// same connection.
func ExpectsReply(c Command) bool {
	switch c.(type) {
	case GetPeers, *GetPeers, Ls, *Ls, Dl, *Dl:
		return true
	}
	return false
}
