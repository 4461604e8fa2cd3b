package node

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/VetheonGames/sharenode/pkg/wire"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Start begins accepting connections
func (n *Node) Start() {
	n.stateMutex.Lock()
	defer n.stateMutex.Unlock()

	if n.started || n.shutdown {
		return
	}

	n.started = true
	log.Infof("Node listening on %s", n.self)

	n.wg.Add(1)
	go n.acceptConnections()

	if n.cfg.GossipInterval > 0 {
		n.wg.Add(1)
		go n.startGossiping()
	}
}

// Stop closes the listener. Connections already accepted are served to
// completion; WaitForShutdown blocks until they are.
func (n *Node) Stop() {
	n.stateMutex.Lock()
	defer n.stateMutex.Unlock()

	if n.shutdown {
		return
	}

	log.Infof("Node %s shutting down", n.self)

	n.shutdown = true
	close(n.quit)
	if err := n.listener.Close(); err != nil {
		log.Debugf("Closing listener: %v", err)
	}
}

// WaitForShutdown blocks until the accept loop and every connection handler
// have returned
func (n *Node) WaitForShutdown() {
	n.wg.Wait()
}

func (n *Node) stopped() bool {
	select {
	case <-n.quit:
		return true
	default:
		return false
	}
}

// acceptConnections serves one goroutine per inbound connection. Accept
// errors are retried with a growing delay until the node stops.
func (n *Node) acceptConnections() {
	defer n.wg.Done()

	var retryDelay time.Duration
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if n.stopped() || errors.Is(err, net.ErrClosed) {
				return
			}

			if retryDelay == 0 {
				retryDelay = minAcceptDelay
			} else {
				retryDelay *= 2
			}
			if retryDelay > maxAcceptDelay {
				retryDelay = maxAcceptDelay
			}
			log.Errorf("Accept failed: %v; retrying in %v", err, retryDelay)

			select {
			case <-time.After(retryDelay):
			case <-n.quit:
				return
			}
			continue
		}
		retryDelay = 0

		n.wg.Add(1)
		go n.handleConnection(conn)
	}
}

// handleConnection reads one line, dispatches it and writes back the reply
// if the command has one
func (n *Node) handleConnection(conn net.Conn) {
	defer n.wg.Done()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(n.cfg.IOTimeout))

	line, err := readLine(conn, n.cfg.MaxLineBytes)
	if err != nil {
		if err != io.EOF {
			log.Debugf("Read from %s failed: %v", conn.RemoteAddr(), err)
		}
		return
	}

	msg, err := wire.Decode(line)
	if err != nil {
		log.Warnf("Dropping line from %s: %v", conn.RemoteAddr(), err)
		return
	}

	reply := n.handleMessage(msg)
	if reply == nil {
		return
	}

	if err := n.writeMessage(conn, reply); err != nil {
		log.Debugf("Reply %s to %s failed: %v", reply.Type(), msg.From, err)
	}
}

// writeMessage ticks the clock, stamps cmd and writes it to w
func (n *Node) writeMessage(w io.Writer, cmd wire.Command) error {
	line, err := wire.Encode(&wire.Message{From: n.self, Clock: n.clock.Tick(), Command: cmd})
	if err != nil {
		return err
	}
	log.Tracef("Sending %s", line[:len(line)-1])
	_, err = w.Write(line)
	return err
}

// readLine reads a single newline terminated line of at most max bytes. A
// final line without a newline is accepted. io.EOF means the peer sent
// nothing.
func readLine(r io.Reader, max int) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), max)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return scanner.Bytes(), nil
}
