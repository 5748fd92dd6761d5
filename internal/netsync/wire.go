package netsync

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/vovakirdan/lockstep/internal/core"
)

// Message types carried in the first byte of every data payload.
const (
	MsgClientTics   uint8 = 1
	MsgHostTics     uint8 = 2
	MsgStartSession uint8 = 3
	MsgRoster       uint8 = 4
	MsgEndSession   uint8 = 5
)

// MaxTicsPerMessage bounds numNewTics on the wire.
const MaxTicsPerMessage = 64

// sealOverhead is both checksums plus the type byte.
const sealOverhead = 4 + 1 + 4

// seal frames body as [checksumA][type][body][checksumB]. checksumA is the
// CRC32 of type and body; checksumB is its bitwise complement.
func seal(typ uint8, body []byte) []byte {
	sum := crc32.Update(crc32.ChecksumIEEE([]byte{typ}), crc32.IEEETable, body)
	buf := make([]byte, 0, sealOverhead+len(body))
	buf = binary.LittleEndian.AppendUint32(buf, sum)
	buf = append(buf, typ)
	buf = append(buf, body...)
	return binary.LittleEndian.AppendUint32(buf, ^sum)
}

// unseal validates a payload and returns its type and body. Any failure wraps
// ErrTransportCorruption.
func unseal(payload []byte) (uint8, []byte, error) {
	if len(payload) < sealOverhead {
		return 0, nil, fmt.Errorf("%w: %d byte payload", ErrTransportCorruption, len(payload))
	}
	sumA := binary.LittleEndian.Uint32(payload[0:4])
	sumB := binary.LittleEndian.Uint32(payload[len(payload)-4:])
	if sumB != ^sumA {
		return 0, nil, fmt.Errorf("%w: checksum pair mismatch", ErrTransportCorruption)
	}
	typ := payload[4]
	body := payload[5 : len(payload)-4]
	if crc32.Update(crc32.ChecksumIEEE([]byte{typ}), crc32.IEEETable, body) != sumA {
		return 0, nil, fmt.Errorf("%w: body checksum mismatch", ErrTransportCorruption)
	}
	return typ, body, nil
}

// ClientToHost carries a client's confirmed horizon and its commands from
// that horizon onward.
type ClientToHost struct {
	ReceivedHorizon int32
	Tics            []core.Ticcmd // tics [ReceivedHorizon, ReceivedHorizon+len(Tics))
}

// Encode returns the sealed payload.
func (m ClientToHost) Encode() []byte {
	body := make([]byte, 0, 8+len(m.Tics)*core.TiccmdSize)
	body = binary.LittleEndian.AppendUint32(body, uint32(m.ReceivedHorizon))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(m.Tics)))
	for _, c := range m.Tics {
		body = c.Append(body)
	}
	return seal(MsgClientTics, body)
}

func decodeClientToHost(body []byte) (ClientToHost, error) {
	if len(body) < 8 {
		return ClientToHost{}, fmt.Errorf("%w: short client message", ErrTransportCorruption)
	}
	r := int32(binary.LittleEndian.Uint32(body[0:]))
	n := int32(binary.LittleEndian.Uint32(body[4:]))
	if r < 0 || n < 0 || n > MaxTicsPerMessage || len(body) != 8+int(n)*core.TiccmdSize {
		return ClientToHost{}, fmt.Errorf("%w: bad client message header r=%d n=%d", ErrTransportCorruption, r, n)
	}
	m := ClientToHost{ReceivedHorizon: r, Tics: make([]core.Ticcmd, n)}
	off := 8
	for i := range m.Tics {
		c, err := core.DecodeTiccmd(body[off:])
		if err != nil {
			return ClientToHost{}, fmt.Errorf("%w: %v", ErrTransportCorruption, err)
		}
		m.Tics[i] = c
		off += core.TiccmdSize
	}
	return m, nil
}

// HostToClient carries the consensus horizon and every other in-game slot's
// commands for tics [StartTic, StartTic+NumNewTics).
type HostToClient struct {
	ReceivedByAll    int32
	StartTic         int32
	NumNewTics       int32
	PeerPlayerIndex  []uint8
	ConnectivityMask uint8
	Tics             [][]core.Ticcmd // [peer][tic]
}

// Encode returns the sealed payload.
func (m HostToClient) Encode() []byte {
	body := make([]byte, 0, 14+len(m.PeerPlayerIndex)*(1+int(m.NumNewTics)*core.TiccmdSize))
	body = binary.LittleEndian.AppendUint32(body, uint32(m.ReceivedByAll))
	body = binary.LittleEndian.AppendUint32(body, uint32(m.StartTic))
	body = binary.LittleEndian.AppendUint32(body, uint32(m.NumNewTics))
	body = append(body, uint8(len(m.PeerPlayerIndex)))
	body = append(body, m.PeerPlayerIndex...)
	body = append(body, m.ConnectivityMask)
	for p := range m.PeerPlayerIndex {
		for t := 0; t < int(m.NumNewTics); t++ {
			body = m.Tics[p][t].Append(body)
		}
	}
	return seal(MsgHostTics, body)
}

func decodeHostToClient(body []byte) (HostToClient, error) {
	if len(body) < 14 {
		return HostToClient{}, fmt.Errorf("%w: short host message", ErrTransportCorruption)
	}
	m := HostToClient{
		ReceivedByAll: int32(binary.LittleEndian.Uint32(body[0:])),
		StartTic:      int32(binary.LittleEndian.Uint32(body[4:])),
		NumNewTics:    int32(binary.LittleEndian.Uint32(body[8:])),
	}
	peers := int(body[12])
	if m.ReceivedByAll < 0 || m.StartTic < 0 || m.NumNewTics < 0 || m.NumNewTics > MaxTicsPerMessage || peers >= core.MaxPlayers {
		return HostToClient{}, fmt.Errorf("%w: bad host message header", ErrTransportCorruption)
	}
	n := int(m.NumNewTics)
	if len(body) != 13+peers+1+peers*n*core.TiccmdSize {
		return HostToClient{}, fmt.Errorf("%w: host message length %d", ErrTransportCorruption, len(body))
	}

	off := 13
	m.PeerPlayerIndex = append([]uint8(nil), body[off:off+peers]...)
	off += peers
	for _, idx := range m.PeerPlayerIndex {
		if int(idx) >= core.MaxPlayers {
			return HostToClient{}, fmt.Errorf("%w: peer index %d", ErrTransportCorruption, idx)
		}
	}
	m.ConnectivityMask = body[off]
	off++

	m.Tics = make([][]core.Ticcmd, peers)
	for p := range m.Tics {
		m.Tics[p] = make([]core.Ticcmd, n)
		for t := range m.Tics[p] {
			c, err := core.DecodeTiccmd(body[off:])
			if err != nil {
				return HostToClient{}, fmt.Errorf("%w: %v", ErrTransportCorruption, err)
			}
			m.Tics[p][t] = c
			off += core.TiccmdSize
		}
	}
	return m, nil
}

// StartSession moves every client into active play.
type StartSession struct {
	Ruleset    core.Ruleset
	Seed       int64
	TicRate    uint16
	BackupTics uint16
	InGameMask uint8
}

// Encode returns the sealed payload.
func (m StartSession) Encode() []byte {
	body := make([]byte, 0, 18)
	body = binary.LittleEndian.AppendUint16(body, m.Ruleset.PackFlags())
	body = append(body, m.Ruleset.Map)
	body = binary.LittleEndian.AppendUint16(body, m.Ruleset.TimeLimit)
	body = binary.LittleEndian.AppendUint64(body, uint64(m.Seed))
	body = binary.LittleEndian.AppendUint16(body, m.TicRate)
	body = binary.LittleEndian.AppendUint16(body, m.BackupTics)
	body = append(body, m.InGameMask)
	return seal(MsgStartSession, body)
}

func decodeStartSession(body []byte) (StartSession, error) {
	if len(body) != 18 {
		return StartSession{}, fmt.Errorf("%w: start session length %d", ErrTransportCorruption, len(body))
	}
	rules := core.UnpackRuleset(binary.LittleEndian.Uint16(body[0:]), body[2])
	rules.TimeLimit = binary.LittleEndian.Uint16(body[3:])
	return StartSession{
		Ruleset:    rules,
		Seed:       int64(binary.LittleEndian.Uint64(body[5:])),
		TicRate:    binary.LittleEndian.Uint16(body[13:]),
		BackupTics: binary.LittleEndian.Uint16(body[15:]),
		InGameMask: body[17],
	}, nil
}

// SetPlayerRoster tells a client its slot and who occupies the others.
type SetPlayerRoster struct {
	LocalPlayerIndex uint8
	HostIndex        uint8
	HostName         string
	InGameMask       uint8
	PeerNames        [core.MaxPlayers]string
}

// Encode returns the sealed payload.
func (m SetPlayerRoster) Encode() []byte {
	body := []byte{m.LocalPlayerIndex, m.HostIndex, m.InGameMask}
	body = appendName(body, m.HostName)
	for _, n := range m.PeerNames {
		body = appendName(body, n)
	}
	return seal(MsgRoster, body)
}

func decodeRoster(body []byte) (SetPlayerRoster, error) {
	bad := fmt.Errorf("%w: malformed roster", ErrTransportCorruption)
	if len(body) < 3 {
		return SetPlayerRoster{}, bad
	}
	m := SetPlayerRoster{LocalPlayerIndex: body[0], HostIndex: body[1], InGameMask: body[2]}
	if int(m.LocalPlayerIndex) >= core.MaxPlayers || int(m.HostIndex) >= core.MaxPlayers {
		return SetPlayerRoster{}, bad
	}
	rest := body[3:]
	var ok bool
	if m.HostName, rest, ok = readName(rest); !ok {
		return SetPlayerRoster{}, bad
	}
	for i := range m.PeerNames {
		if m.PeerNames[i], rest, ok = readName(rest); !ok {
			return SetPlayerRoster{}, bad
		}
	}
	if len(rest) != 0 {
		return SetPlayerRoster{}, bad
	}
	return m, nil
}

// EndSession returns every client to the pre-game phase.
type EndSession struct {
	Reason uint8
}

// Encode returns the sealed payload.
func (m EndSession) Encode() []byte {
	return seal(MsgEndSession, []byte{m.Reason})
}

func appendName(b []byte, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	b = append(b, byte(len(s)))
	return append(b, s...)
}

func readName(b []byte) (string, []byte, bool) {
	if len(b) < 1 || len(b) < 1+int(b[0]) {
		return "", nil, false
	}
	n := int(b[0])
	return string(b[1 : 1+n]), b[1+n:], true
}
