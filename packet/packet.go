// Package packet defines the wire-level entities exchanged between an
// Encoder and a Decoder — source, repair and ack packets — and their
// little-endian, fixed-width binary codec.
package packet

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies a packet's kind; it is always the first byte on the wire.
type Tag byte

const (
	TagSource Tag = 1
	TagRepair Tag = 2
	TagAck    Tag = 3
)

func (t Tag) String() string {
	switch t {
	case TagSource:
		return "SOURCE"
	case TagRepair:
		return "REPAIR"
	case TagAck:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// ErrMalformed is wrapped by every parse error caused by truncated or
// inconsistent packet bytes.
var ErrMalformed = fmt.Errorf("packet: malformed")

// Packet is the closed sum type of the three wire packet kinds. Callers
// dispatch on the concrete type with a type switch rather than a shared
// method set, since the three kinds have disjoint fields.
type Packet interface {
	isPacket()
}

// Source carries one application symbol verbatim.
type Source struct {
	ID       uint32
	UserSize uint16
	Bytes    []byte // len == UserSize
}

func (Source) isPacket() {}

// Repair carries a linear combination of a set of sources.
type Repair struct {
	ID          uint32
	EncodedSize uint16
	SourceIDs   []uint32
	Symbol      []byte // len == max user_size across SourceIDs at seal time
}

func (Repair) isPacket() {}

// Ack advises the encoder that every id up to and including the maximum in
// Ids has been received or reconstructed.
type Ack struct {
	Ids []uint32
}

func (Ack) isPacket() {}

// Encode appends the wire encoding of a Source packet to dst and returns the
// extended slice.
func (s Source) Encode(dst []byte) []byte {
	dst = append(dst, byte(TagSource))
	dst = appendU32(dst, s.ID)
	dst = appendU16(dst, s.UserSize)
	dst = append(dst, s.Bytes...)
	return dst
}

// Encode appends the wire encoding of a Repair packet to dst.
func (r Repair) Encode(dst []byte) []byte {
	dst = append(dst, byte(TagRepair))
	dst = appendU32(dst, r.ID)
	dst = appendU16(dst, r.EncodedSize)
	dst = appendU16(dst, uint16(len(r.SourceIDs)))
	for _, id := range r.SourceIDs {
		dst = appendU32(dst, id)
	}
	dst = appendU16(dst, uint16(len(r.Symbol)))
	dst = append(dst, r.Symbol...)
	return dst
}

// Encode appends the wire encoding of an Ack packet to dst.
func (a Ack) Encode(dst []byte) []byte {
	dst = append(dst, byte(TagAck))
	dst = appendU16(dst, uint16(len(a.Ids)))
	for _, id := range a.Ids {
		dst = appendU32(dst, id)
	}
	return dst
}

// Parse inspects the first byte of data and decodes the corresponding
// packet. It returns the number of bytes consumed and the decoded packet.
// An unknown tag or truncated payload returns a wrapped ErrMalformed and a
// nil packet; the caller drops that packet on the floor.
func Parse(data []byte) (Packet, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("empty packet: %w", ErrMalformed)
	}
	switch Tag(data[0]) {
	case TagSource:
		return parseSource(data)
	case TagRepair:
		return parseRepair(data)
	case TagAck:
		return parseAck(data)
	default:
		return nil, 0, fmt.Errorf("unknown tag %d: %w", data[0], ErrMalformed)
	}
}

func parseSource(data []byte) (Packet, int, error) {
	const head = 1 + 4 + 2
	if len(data) < head {
		return nil, 0, fmt.Errorf("truncated source header: %w", ErrMalformed)
	}
	id := binary.LittleEndian.Uint32(data[1:5])
	userSize := binary.LittleEndian.Uint16(data[5:7])
	end := head + int(userSize)
	if len(data) < end {
		return nil, 0, fmt.Errorf("truncated source payload: %w", ErrMalformed)
	}
	bytes := make([]byte, userSize)
	copy(bytes, data[head:end])
	return Source{ID: id, UserSize: userSize, Bytes: bytes}, end, nil
}

func parseRepair(data []byte) (Packet, int, error) {
	const head = 1 + 4 + 2 + 2
	if len(data) < head {
		return nil, 0, fmt.Errorf("truncated repair header: %w", ErrMalformed)
	}
	id := binary.LittleEndian.Uint32(data[1:5])
	encodedSize := binary.LittleEndian.Uint16(data[5:7])
	nbIds := binary.LittleEndian.Uint16(data[7:9])
	off := head
	idsEnd := off + int(nbIds)*4
	if len(data) < idsEnd+2 {
		return nil, 0, fmt.Errorf("truncated repair ids: %w", ErrMalformed)
	}
	ids := make([]uint32, nbIds)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(data[off+4*i:])
	}
	symLen := binary.LittleEndian.Uint16(data[idsEnd : idsEnd+2])
	symStart := idsEnd + 2
	symEnd := symStart + int(symLen)
	if len(data) < symEnd {
		return nil, 0, fmt.Errorf("truncated repair symbol: %w", ErrMalformed)
	}
	symbol := make([]byte, symLen)
	copy(symbol, data[symStart:symEnd])
	return Repair{ID: id, EncodedSize: encodedSize, SourceIDs: ids, Symbol: symbol}, symEnd, nil
}

func parseAck(data []byte) (Packet, int, error) {
	const head = 1 + 2
	if len(data) < head {
		return nil, 0, fmt.Errorf("truncated ack header: %w", ErrMalformed)
	}
	nbIds := binary.LittleEndian.Uint16(data[1:3])
	end := head + int(nbIds)*4
	if len(data) < end {
		return nil, 0, fmt.Errorf("truncated ack ids: %w", ErrMalformed)
	}
	ids := make([]uint32, nbIds)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(data[head+4*i:])
	}
	return Ack{Ids: ids}, end, nil
}

func appendU16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}
