package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Addr identifies a node on the network by IPv4/IPv6 address and TCP port
type Addr struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// String returns the ip:port form used on the wire
func (a Addr) String() string {
	return a.IP + ":" + strconv.Itoa(int(a.Port))
}

// Dial returns the address in the form net.Dial expects
func (a Addr) Dial() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(int(a.Port)))
}

// Less orders addresses by IP string, then port
func (a Addr) Less(b Addr) bool {
	if a.IP != b.IP {
		return a.IP < b.IP
	}
	return a.Port < b.Port
}

// ParseAddr parses "ip:port". The IP part is the text before the last colon
// so that the wire form of a node address round-trips.
func ParseAddr(s string) (Addr, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return Addr{}, fmt.Errorf("address %q is not ip:port", s)
	}
	port, err := ParsePort(s[i+1:])
	if err != nil {
		return Addr{}, err
	}
	return Addr{IP: s[:i], Port: port}, nil
}

// ParsePort checks that a port is a number in 1..65535
func ParsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil || p == 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(p), nil
}

// Status is the liveness of a neighbor as last observed
type Status int

const (
	// Offline means the neighbor left (BYE) or could not be reached
	Offline Status = iota
	// Online means the neighbor has been heard from
	Online
)

// String returns the wire spelling of the status
func (s Status) String() string {
	if s == Online {
		return "ONLINE"
	}
	return "OFFLINE"
}

// MarshalText lets statuses appear by name in JSON output
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus parses the wire spelling of a status
func ParseStatus(s string) (Status, error) {
	switch s {
	case "ONLINE":
		return Online, nil
	case "OFFLINE":
		return Offline, nil
	default:
		return Offline, fmt.Errorf("unknown status %q", s)
	}
}
