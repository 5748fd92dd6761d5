package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/vovakirdan/lockstep/internal/core"
)

// ProtocolVersion is bumped whenever any wire layout changes.
const ProtocolVersion = 2

// FrameHeaderSize is kind (1) + session id (4) + frame check (4).
const FrameHeaderSize = 9

// MaxPayload bounds a data payload.
const MaxPayload = 1400

// Kind tags a link-level frame.
type Kind uint8

const (
	KindAdvertise Kind = iota + 1
	KindScanRequest
	KindScanResponse
	KindConnectRequest
	KindConnectAccept
	KindConnectReject
	KindDisconnect
	KindPing
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindAdvertise:
		return "advertise"
	case KindScanRequest:
		return "scan-request"
	case KindScanResponse:
		return "scan-response"
	case KindConnectRequest:
		return "connect-request"
	case KindConnectAccept:
		return "connect-accept"
	case KindConnectReject:
		return "connect-reject"
	case KindDisconnect:
		return "disconnect"
	case KindPing:
		return "ping"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ErrMalformed is returned for frames that cannot be decoded.
var ErrMalformed = errors.New("transport: malformed frame")

// Frame is a decoded link-level frame.
type Frame struct {
	Kind    Kind
	Session uint32
	Body    []byte
}

// EncodeFrame builds a frame: [kind][session][check][body], where check is
// the CRC32 of kind, session and body.
func EncodeFrame(kind Kind, session uint32, body []byte) []byte {
	buf := make([]byte, FrameHeaderSize, FrameHeaderSize+len(body))
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint32(buf[1:], session)
	binary.LittleEndian.PutUint32(buf[5:], frameCheck(buf[:5], body))
	return append(buf, body...)
}

// DecodeFrame parses a frame. The body aliases data. A frame whose check
// does not match is malformed.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < FrameHeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	k := Kind(data[0])
	if k < KindAdvertise || k > KindData {
		return Frame{}, fmt.Errorf("%w: unknown kind %d", ErrMalformed, data[0])
	}
	body := data[FrameHeaderSize:]
	if binary.LittleEndian.Uint32(data[5:]) != frameCheck(data[:5], body) {
		return Frame{}, fmt.Errorf("%w: %s frame check mismatch", ErrMalformed, k)
	}
	return Frame{
		Kind:    k,
		Session: binary.LittleEndian.Uint32(data[1:]),
		Body:    body,
	}, nil
}

func frameCheck(header, body []byte) uint32 {
	return crc32.Update(crc32.ChecksumIEEE(header), crc32.IEEETable, body)
}

// RejectReason explains a refused connect request.
type RejectReason uint8

const (
	RejectFull RejectReason = iota + 1
	RejectInProgress
	RejectVersion
)

func (r RejectReason) String() string {
	switch r {
	case RejectFull:
		return "session full"
	case RejectInProgress:
		return "session in progress"
	case RejectVersion:
		return "protocol version mismatch"
	default:
		return "rejected"
	}
}

// MaxNameLen bounds player and session names on the wire.
const MaxNameLen = 16

type connectRequest struct {
	Version uint8
	Name    string
}

func (r connectRequest) encode() []byte {
	name := clipName(r.Name)
	buf := []byte{r.Version, byte(len(name))}
	return append(buf, name...)
}

func decodeConnectRequest(b []byte) (connectRequest, error) {
	if len(b) < 2 || len(b) != 2+int(b[1]) || int(b[1]) > MaxNameLen {
		return connectRequest{}, fmt.Errorf("%w: connect request", ErrMalformed)
	}
	return connectRequest{Version: b[0], Name: string(b[2:])}, nil
}

type connectAccept struct {
	Slot     uint8
	Capacity uint8
}

func (a connectAccept) encode() []byte {
	return []byte{a.Slot, a.Capacity}
}

// decodeConnectAccept rejects slot assignments no host can make: slot 0 is
// the host's own.
func decodeConnectAccept(b []byte) (connectAccept, error) {
	if len(b) != 2 {
		return connectAccept{}, fmt.Errorf("%w: connect accept", ErrMalformed)
	}
	a := connectAccept{Slot: b[0], Capacity: b[1]}
	if a.Slot == 0 || int(a.Slot) >= core.MaxPlayers || a.Capacity < 2 || int(a.Capacity) > core.MaxPlayers {
		return connectAccept{}, fmt.Errorf("%w: connect accept slot %d of %d", ErrMalformed, a.Slot, a.Capacity)
	}
	return a, nil
}

func clipName(s string) string {
	if len(s) > MaxNameLen {
		return s[:MaxNameLen]
	}
	return s
}
