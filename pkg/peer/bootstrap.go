package peer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/multiformats/go-multiaddr"

	"github.com/VetheonGames/sharenode/pkg/types"
)

// LoadNeighbors parses a bootstrap list. Each line is either ip:port or a
// multiaddr such as /ip4/127.0.0.1/tcp/8002. Blank lines and lines starting
// with # are skipped. Any other line fails the whole list.
func LoadNeighbors(r io.Reader) ([]types.Addr, error) {
	var addrs []types.Addr
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			addr types.Addr
			err  error
		)
		if strings.HasPrefix(line, "/") {
			addr, err = AddrFromMultiaddr(line)
		} else {
			addr, err = types.ParseAddr(line)
		}
		if err != nil {
			return nil, fmt.Errorf("neighbors line %d: %w", lineNo, err)
		}
		addrs = append(addrs, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read neighbors: %w", err)
	}
	return addrs, nil
}

// AddrFromMultiaddr converts an /ip4, /ip6 or /dns4 multiaddr with a /tcp
// component into a node address
func AddrFromMultiaddr(s string) (types.Addr, error) {
	ma, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return types.Addr{}, fmt.Errorf("invalid multiaddr %q: %w", s, err)
	}

	var host string
	for _, code := range []int{multiaddr.P_IP4, multiaddr.P_IP6, multiaddr.P_DNS4} {
		if v, err := ma.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	if host == "" {
		return types.Addr{}, fmt.Errorf("multiaddr %q has no ip4, ip6 or dns4 component", s)
	}

	portStr, err := ma.ValueForProtocol(multiaddr.P_TCP)
	if err != nil {
		return types.Addr{}, fmt.Errorf("multiaddr %q has no tcp component", s)
	}
	port, err := types.ParsePort(portStr)
	if err != nil {
		return types.Addr{}, err
	}
	return types.Addr{IP: host, Port: port}, nil
}

// Multiaddr renders addr as a /ip4 or /ip6 tcp multiaddr
func Multiaddr(addr types.Addr) (multiaddr.Multiaddr, error) {
	proto := "ip4"
	if strings.Contains(addr.IP, ":") {
		proto = "ip6"
	}
	return multiaddr.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d", proto, addr.IP, addr.Port))
}
