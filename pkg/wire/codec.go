package wire

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/VetheonGames/sharenode/pkg/types"
)

// Encode renders a message as one newline terminated line
func Encode(msg *Message) ([]byte, error) {
	if msg == nil || msg.Command == nil {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	if err := validateToken(msg.From.IP); err != nil {
		return nil, err
	}

	fields := []string{
		msg.From.String(),
		strconv.FormatUint(msg.Clock, 10),
		string(msg.Command.Type()),
	}
	for _, arg := range msg.Command.args() {
		if err := validateToken(arg); err != nil {
			return nil, err
		}
		fields = append(fields, arg)
	}

	var buf bytes.Buffer
	buf.WriteString(strings.Join(fields, " "))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Decode parses one line. The trailing newline is optional.
func Decode(line []byte) (*Message, error) {
	tokens := strings.Fields(string(line))
	if len(tokens) < 3 {
		return nil, fmt.Errorf("%w: %d fields, need at least 3", ErrMalformed, len(tokens))
	}

	from, err := types.ParseAddr(tokens[0])
	if err != nil {
		return nil, fmt.Errorf("%w: sender: %v", ErrMalformed, err)
	}
	clock, err := strconv.ParseUint(tokens[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: clock %q", ErrMalformed, tokens[1])
	}

	cmd, err := decodeCommand(CommandType(tokens[2]), tokens[3:])
	if err != nil {
		return nil, err
	}
	return &Message{From: from, Clock: clock, Command: cmd}, nil
}

func decodeCommand(t CommandType, args []string) (Command, error) {
	switch t {
	case TypeHello:
		return Hello{}, nil
	case TypeGetPeers:
		return GetPeers{}, nil
	case TypeBye:
		return Bye{}, nil
	case TypeLs:
		return Ls{}, nil
	case TypePeerList:
		return decodePeerList(args)
	case TypeLsList:
		return decodeLsList(args)
	case TypeDl:
		return decodeDl(args)
	case TypeFile:
		return decodeFile(args)
	default:
		return Unknown{Name: string(t), Args: args}, nil
	}
}

func decodeCount(t CommandType, args []string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s without count", ErrMalformed, t)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s count %q", ErrMalformed, t, args[0])
	}
	return n, nil
}

func decodePeerList(args []string) (Command, error) {
	count, err := decodeCount(TypePeerList, args)
	if err != nil {
		return nil, err
	}
	list := PeerList{Count: count}
	for _, raw := range args[1:] {
		entry, err := ParsePeerEntry(raw)
		if err != nil {
			list.Skipped++
			continue
		}
		list.Peers = append(list.Peers, entry)
	}
	return list, nil
}

func decodeLsList(args []string) (Command, error) {
	count, err := decodeCount(TypeLsList, args)
	if err != nil {
		return nil, err
	}
	list := LsList{Count: count}
	for _, raw := range args[1:] {
		entry, err := ParseFileEntry(raw)
		if err != nil {
			list.Skipped++
			continue
		}
		list.Files = append(list.Files, entry)
	}
	return list, nil
}

func decodeChunkRef(t CommandType, args []string) (string, int, int, error) {
	size, err := strconv.Atoi(args[1])
	if err != nil || size <= 0 {
		return "", 0, 0, fmt.Errorf("%w: %s chunk size %q", ErrMalformed, t, args[1])
	}
	index, err := strconv.Atoi(args[2])
	if err != nil || index < 0 {
		return "", 0, 0, fmt.Errorf("%w: %s chunk index %q", ErrMalformed, t, args[2])
	}
	return args[0], size, index, nil
}

func decodeDl(args []string) (Command, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("%w: DL takes 3 args, got %d", ErrMalformed, len(args))
	}
	name, size, index, err := decodeChunkRef(TypeDl, args)
	if err != nil {
		return nil, err
	}
	return Dl{Name: name, ChunkSize: size, Index: index}, nil
}

func decodeFile(args []string) (Command, error) {
	// An empty chunk travels without the payload field.
	if len(args) != 3 && len(args) != 4 {
		return nil, fmt.Errorf("%w: FILE takes 3 or 4 args, got %d", ErrMalformed, len(args))
	}
	name, size, index, err := decodeChunkRef(TypeFile, args)
	if err != nil {
		return nil, err
	}
	f := File{Name: name, ChunkSize: size, Index: index, Data: []byte{}}
	if len(args) == 4 {
		f.Data, err = base64.StdEncoding.DecodeString(args[3])
		if err != nil {
			return nil, fmt.Errorf("%w: FILE payload: %v", ErrMalformed, err)
		}
	}
	return f, nil
}

// ParsePeerEntry parses ip:port:status:clock
func ParsePeerEntry(s string) (PeerEntry, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return PeerEntry{}, fmt.Errorf("peer entry %q: want ip:port:status:clock", s)
	}
	port, err := types.ParsePort(parts[1])
	if err != nil {
		return PeerEntry{}, err
	}
	status, err := types.ParseStatus(parts[2])
	if err != nil {
		return PeerEntry{}, err
	}
	clock, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return PeerEntry{}, fmt.Errorf("peer entry %q: bad clock", s)
	}
	if parts[0] == "" {
		return PeerEntry{}, fmt.Errorf("peer entry %q: empty ip", s)
	}
	return PeerEntry{Addr: types.Addr{IP: parts[0], Port: port}, Status: status, Clock: clock}, nil
}

// ParseFileEntry parses name:size:ip:port. The last three fields are split
// off from the right so names may contain colons.
func ParseFileEntry(s string) (FileEntry, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return FileEntry{}, fmt.Errorf("file entry %q: want name:size:ip:port", s)
	}
	n := len(parts)
	name := strings.Join(parts[:n-3], ":")
	if name == "" {
		return FileEntry{}, fmt.Errorf("file entry %q: empty name", s)
	}
	size, err := strconv.ParseInt(parts[n-3], 10, 64)
	if err != nil || size < 0 {
		return FileEntry{}, fmt.Errorf("file entry %q: bad size", s)
	}
	port, err := types.ParsePort(parts[n-1])
	if err != nil {
		return FileEntry{}, err
	}
	if parts[n-2] == "" {
		return FileEntry{}, fmt.Errorf("file entry %q: empty ip", s)
	}
	return FileEntry{Name: name, Size: size, Location: types.Addr{IP: parts[n-2], Port: port}}, nil
}

func validateToken(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty field", ErrMalformed)
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return fmt.Errorf("%w: field %q contains whitespace", ErrMalformed, s)
	}
	return nil
}

func (Hello) args() []string    { return nil }
func (GetPeers) args() []string { return nil }
func (Bye) args() []string      { return nil }
func (Ls) args() []string       { return nil }

func (p PeerList) args() []string {
	out := make([]string, 0, len(p.Peers)+1)
	out = append(out, strconv.Itoa(len(p.Peers)))
	for _, e := range p.Peers {
		out = append(out, fmt.Sprintf("%s:%s:%d", e.Addr, e.Status, e.Clock))
	}
	return out
}

func (l LsList) args() []string {
	out := make([]string, 0, len(l.Files)+1)
	out = append(out, strconv.Itoa(len(l.Files)))
	for _, f := range l.Files {
		out = append(out, fmt.Sprintf("%s:%d:%s", f.Name, f.Size, f.Location))
	}
	return out
}

func (d Dl) args() []string {
	return []string{d.Name, strconv.Itoa(d.ChunkSize), strconv.Itoa(d.Index)}
}

func (f File) args() []string {
	out := []string{f.Name, strconv.Itoa(f.ChunkSize), strconv.Itoa(f.Index)}
	if len(f.Data) > 0 {
		out = append(out, base64.StdEncoding.EncodeToString(f.Data))
	}
	return out
}

func (u Unknown) args() []string { return u.Args }
