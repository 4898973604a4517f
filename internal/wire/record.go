package wire

import (
	"encoding/binary"
	"fmt"
)

// Record is a DNS resource record (RFC 1035 Section 4.1.3). RDATA is kept
// as the raw, undecoded wire bytes: the matcher only ever needs the record
// type (for AnswerTypes) and, for RRSIG records, the two-byte type_covered
// field at the front of RDATA (for AnswerRrsigs) — decoding compressed
// names embedded inside RDATA (CNAME targets, SOA mname/rname, ...) is out
// of scope for a comparison-only wire reader.
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	RData []byte
}

// ParseRecord decodes one resource record at *off, advancing *off past it.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Record{}, err
	}
	if *off+10 > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF reading record header", ErrMessage)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	*off += 10

	if *off+int(rdlen) > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF reading record rdata", ErrMessage)
	}
	rdata := make([]byte, rdlen)
	copy(rdata, msg[*off:*off+int(rdlen)])
	*off += int(rdlen)

	return Record{Name: name, Type: rrType, Class: rrClass, TTL: ttl, RData: rdata}, nil
}

// Marshal serializes the record to wire format. Names are encoded without
// compression, matching Packet.Marshal.
func (rr Record) Marshal() ([]byte, error) {
	name, err := EncodeName(rr.Name)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(name)+10+len(rr.RData))
	out = append(out, name...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rr.RData)))
	out = append(out, fixed...)
	return append(out, rr.RData...), nil
}

// TypeCovered returns the type_covered field of an RRSIG record's RDATA
// (RFC 4034 Section 3.1, first two octets). ok is false for any other
// record type or if RDATA is too short to contain it.
func (rr Record) TypeCovered() (t RecordType, ok bool) {
	if RecordType(rr.Type) != TypeRRSIG || len(rr.RData) < 2 {
		return 0, false
	}
	return RecordType(binary.BigEndian.Uint16(rr.RData[0:2])), true
}
