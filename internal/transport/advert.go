package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vovakirdan/lockstep/internal/core"
)

// AdvertSize is the fixed size of an advertisement body.
const AdvertSize = 6 + MaxNameLen

// Advertisement is the small fixed record a host broadcasts while it has room.
type Advertisement struct {
	Flags       uint16 // packed ruleset flags
	Map         uint8
	PlayerCount uint8
	Capacity    uint8 // total slots including the host
	Version     uint8
	Name        string
}

// Ruleset unpacks the advertised rules.
func (a Advertisement) Ruleset() core.Ruleset {
	return core.UnpackRuleset(a.Flags, a.Map)
}

// Open reports whether the session still has a free slot.
func (a Advertisement) Open() bool {
	return a.PlayerCount < a.Capacity
}

// MarshalBinary encodes the advertisement.
func (a Advertisement) MarshalBinary() ([]byte, error) {
	buf := make([]byte, AdvertSize)
	binary.LittleEndian.PutUint16(buf[0:], a.Flags)
	buf[2] = a.Map
	buf[3] = a.PlayerCount
	buf[4] = a.Capacity
	buf[5] = a.Version
	copy(buf[6:], clipName(a.Name))
	return buf, nil
}

// UnmarshalBinary decodes an advertisement.
func (a *Advertisement) UnmarshalBinary(b []byte) error {
	if len(b) != AdvertSize {
		return fmt.Errorf("%w: advertisement is %d bytes", ErrMalformed, len(b))
	}
	a.Flags = binary.LittleEndian.Uint16(b[0:])
	a.Map = b[2]
	a.PlayerCount = b[3]
	a.Capacity = b[4]
	a.Version = b[5]
	a.Name = string(bytes.TrimRight(b[6:], "\x00"))
	return nil
}

// ScanDetails is the richer description a host returns to a scan request.
type ScanDetails struct {
	Version     int          `msgpack:"v"`
	SessionName string       `msgpack:"name"`
	HostName    string       `msgpack:"host"`
	Ruleset     core.Ruleset `msgpack:"rules"`
	TicRate     int          `msgpack:"tic_rate"`
	BackupTics  int          `msgpack:"backup_tics"`
	Players     []string     `msgpack:"players"`
}

// EncodeScanDetails serializes details with msgpack.
func EncodeScanDetails(d ScanDetails) ([]byte, error) {
	b, err := msgpack.Marshal(&d)
	if err != nil {
		return nil, fmt.Errorf("transport: cannot encode scan response: %w", err)
	}
	return b, nil
}

// DecodeScanDetails parses a scan response body.
func DecodeScanDetails(b []byte) (ScanDetails, error) {
	var d ScanDetails
	if err := msgpack.Unmarshal(b, &d); err != nil {
		return ScanDetails{}, fmt.Errorf("%w: scan response: %v", ErrMalformed, err)
	}
	return d, nil
}
