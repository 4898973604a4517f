// Package respfmt implements the bit-exact encoder/decoder for the
// per-query response-list record persisted under a QKey in the answers
// sub-database. It mirrors the offset-tracking, bounds-checked reader style
// of internal/wire, wrapping the same sentinel-error convention.
package respfmt

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/CZ-NIC/respdiff-go/internal/helpers"
	"github.com/CZ-NIC/respdiff-go/internal/wire"
)

// ErrFormat is the sentinel wrapped by every response-list decode failure.
var ErrFormat = errors.New("response-list format error")

// Sentinel errors distinguished in the decode path. Each wraps ErrFormat
// via fmt.Errorf's %w so callers can match either one.
var (
	// ErrReplyInvalidData is returned for a timeout marker carrying a
	// non-zero declared length, or for a key that is not exactly 4 bytes.
	ErrReplyInvalidData = fmt.Errorf("%w: invalid reply data", ErrFormat)
	// ErrReplyMissingData is returned when a declared record length
	// overruns the buffer, or trailing bytes remain after the last
	// complete record.
	ErrReplyMissingData = fmt.Errorf("%w: missing reply data", ErrFormat)
)

// timeoutMarker is the delay value (u32 LE) reserved to mean "no response
// arrived before the per-query timeout fired".
const timeoutMarker uint32 = 0xFFFFFFFF

const recordHeaderSize = 6 // 4B delay/marker + 2B length

// ServerResponse is the parsed, in-memory form of one server's reply to a
// single query: either it timed out, its bytes failed DNS structural
// validation, or it parsed into a usable Data value.
type ServerResponse struct {
	Timeout bool
	// Malformed is true when Timeout is false and the recorded bytes
	// failed wire.ParsePacket. Delay/Wire are still populated from the
	// on-disk record for Malformed entries; only the decoded message is
	// absent.
	Malformed bool
	Delay     uint32 // microseconds, meaningless when Timeout
	Wire      []byte // raw bytes, meaningless when Timeout
	Message   wire.Packet
}

// ResponseList is one query's recorded set of server responses, in declared
// server order.
type ResponseList struct {
	Key     uint32
	Replies []ServerResponse
}

// Encode packs replies into the answers-table byte string: a concatenation
// of per-server records in position order. A Timeout reply encodes as the
// 0xFFFFFFFF marker with a zero length and no payload; any other reply
// encodes its delay, its wire length, and its raw bytes verbatim (the
// Malformed/Data distinction is not represented on disk — it is
// recomputed by Decode from the bytes).
func Encode(replies []ServerResponse) []byte {
	size := 0
	for _, r := range replies {
		size += recordHeaderSize
		if !r.Timeout {
			size += len(r.Wire)
		}
	}
	out := make([]byte, 0, size)
	for _, r := range replies {
		rec := make([]byte, recordHeaderSize)
		if r.Timeout {
			binary.LittleEndian.PutUint32(rec[0:4], timeoutMarker)
			binary.LittleEndian.PutUint16(rec[4:6], 0)
			out = append(out, rec...)
			continue
		}
		binary.LittleEndian.PutUint32(rec[0:4], r.Delay)
		// A reply longer than a u16 can declare cannot happen over UDP in
		// practice, but clamp rather than silently truncate on the wire.
		binary.LittleEndian.PutUint16(rec[4:6], helpers.ClampIntToUint16(len(r.Wire)))
		out = append(out, rec...)
		out = append(out, r.Wire...)
	}
	return out
}

// Decode unpacks an answers-table value into ordered ServerResponse values.
// Decoding is a single forward pass over the full value; any structural
// violation aborts the whole record (no partial lists are ever returned).
func Decode(value []byte) ([]ServerResponse, error) {
	var replies []ServerResponse
	off := 0
	for off < len(value) {
		if off+recordHeaderSize > len(value) {
			return nil, fmt.Errorf("%w: truncated record header at offset %d", ErrReplyMissingData, off)
		}
		delay := binary.LittleEndian.Uint32(value[off : off+4])
		length := binary.LittleEndian.Uint16(value[off+4 : off+6])
		off += recordHeaderSize

		if delay == timeoutMarker {
			if length != 0 {
				return nil, fmt.Errorf("%w: timeout marker with non-zero length %d", ErrReplyInvalidData, length)
			}
			replies = append(replies, ServerResponse{Timeout: true})
			continue
		}

		if off+int(length) > len(value) {
			return nil, fmt.Errorf("%w: declared length %d overruns buffer at offset %d", ErrReplyMissingData, length, off)
		}
		payload := value[off : off+int(length)]
		off += int(length)

		wirePayload := make([]byte, len(payload))
		copy(wirePayload, payload)

		msg, err := wire.ParsePacket(wirePayload)
		if err != nil {
			replies = append(replies, ServerResponse{Delay: delay, Wire: wirePayload, Malformed: true})
			continue
		}
		replies = append(replies, ServerResponse{Delay: delay, Wire: wirePayload, Message: msg})
	}
	return replies, nil
}

// DecodeKey validates and parses a 4-byte little-endian answers-table key.
func DecodeKey(key []byte) (uint32, error) {
	if len(key) != 4 {
		return 0, fmt.Errorf("%w: key length %d != 4", ErrReplyInvalidData, len(key))
	}
	return binary.LittleEndian.Uint32(key), nil
}

// EncodeKey renders a QKey as its 4-byte little-endian wire form.
func EncodeKey(key uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, key)
	return b
}
