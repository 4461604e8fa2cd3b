package node

import "errors"

var (
	// ErrPeerUnreachable means the peer could not be dialed or the
	// connection failed mid exchange
	ErrPeerUnreachable = errors.New("peer unreachable")
	// ErrProtocol means the peer answered with something that is not a valid
	// reply
	ErrProtocol = errors.New("protocol error")
	// ErrNoResponse means the peer closed the connection without replying
	ErrNoResponse = errors.New("no response")
	// ErrIncomplete means a download finished with chunks missing
	ErrIncomplete = errors.New("download incomplete")
	// ErrNodeStopped is returned by operations started after Stop
	ErrNodeStopped = errors.New("node stopped")
)
