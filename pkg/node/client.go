package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/VetheonGames/sharenode/pkg/types"
	"github.com/VetheonGames/sharenode/pkg/wire"
)

// SendCommand opens a connection to to, sends cmd stamped with a fresh clock
// value and, if expectResponse is set, reads and dispatches one reply line.
// Errors wrap ErrPeerUnreachable, ErrNoResponse or ErrProtocol.
func (n *Node) SendCommand(ctx context.Context, cmd wire.Command, to types.Addr, expectResponse bool) error {
	if n.stopped() {
		return ErrNodeStopped
	}

	conn, err := n.dial(ctx, to)
	if err != nil {
		log.Debugf("Dial %s failed: %v", to, err)
		return fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, to, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(n.cfg.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	// Unblock the exchange if ctx is cancelled without a deadline
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := n.writeMessage(conn, cmd); err != nil {
		if errors.Is(err, wire.ErrMalformed) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, to, err)
	}
	log.Debugf("Sent %s to %s", cmd.Type(), to)

	if !expectResponse {
		return nil
	}

	line, err := readLine(conn, n.cfg.MaxLineBytes)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: %s to %s", ErrNoResponse, cmd.Type(), to)
		}
		return fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, to, err)
	}

	reply, err := wire.Decode(line)
	if err != nil {
		return fmt.Errorf("%w: reply from %s: %v", ErrProtocol, to, err)
	}

	n.handleMessage(reply)

	if want, ok := replyType(cmd); ok && reply.Command.Type() != want {
		return fmt.Errorf("%w: %s answered %s with %s", ErrProtocol, to, cmd.Type(), reply.Command.Type())
	}
	return nil
}

// dial connects to a peer directly or through the configured proxy
func (n *Node) dial(ctx context.Context, to types.Addr) (net.Conn, error) {
	if n.cfg.Proxy == nil {
		dialer := net.Dialer{Timeout: n.cfg.DialTimeout}
		return dialer.DialContext(ctx, "tcp", to.Dial())
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()

	type dialResult struct {
		conn net.Conn
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := n.cfg.Proxy.Dial("tcp", to.Dial())
		done <- dialResult{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		// The proxy dial has no deadline; close the connection if it
		// shows up late.
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("proxy %s: %w", n.cfg.Proxy.Addr, ctx.Err())
	}
}

// replyType returns the command type that answers cmd
func replyType(cmd wire.Command) (wire.CommandType, bool) {
	switch cmd.Type() {
	case wire.TypeGetPeers:
		return wire.TypePeerList, true
	case wire.TypeLs:
		return wire.TypeLsList, true
	case wire.TypeDl:
		return wire.TypeFile, true
	}
	return "", false
}
