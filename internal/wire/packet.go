package wire

// Parsing limits bound allocation from an attacker-controlled header count
// field before the corresponding bytes are known to exist, mirroring the
// declared-count-vs-buffer-size guard used throughout this package's
// section readers.
const (
	MaxQuestions    = 4
	MaxRRPerSection = 200
)

// Packet is a complete DNS message (RFC 1035 Section 4): a header plus four
// sections.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Marshal serializes the packet to wire format, recomputing the section
// counts in the header from the slice lengths.
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: uint16(len(p.Questions)),
		ANCount: uint16(len(p.Answers)),
		NSCount: uint16(len(p.Authorities)),
		ARCount: uint16(len(p.Additionals)),
	}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}

	estimatedSize := HeaderSize + len(p.Questions)*32 + (len(p.Answers)+len(p.Authorities)+len(p.Additionals))*48
	out := make([]byte, 0, estimatedSize)
	out = append(out, hb...)
	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	for _, section := range [][]Record{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range section {
			b, err := rr.Marshal()
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

// ParsePacket decodes a full DNS message. Section counts in the header are
// trusted only up to MaxQuestions/MaxRRPerSection for the initial slice
// capacity; actual iteration still runs the declared count and fails on
// buffer exhaustion.
func ParsePacket(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	p.Questions = make([]Question, 0, limitCount(h.QDCount, MaxQuestions))
	for i := uint16(0); i < h.QDCount; i++ {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}

	for _, dst := range []struct {
		count uint16
		recs  *[]Record
	}{
		{h.ANCount, &p.Answers},
		{h.NSCount, &p.Authorities},
		{h.ARCount, &p.Additionals},
	} {
		*dst.recs = make([]Record, 0, limitCount(dst.count, MaxRRPerSection))
		for i := uint16(0); i < dst.count; i++ {
			rr, err := ParseRecord(msg, &off)
			if err != nil {
				return Packet{}, err
			}
			*dst.recs = append(*dst.recs, rr)
		}
	}
	return p, nil
}

func limitCount(count uint16, limit int) int {
	if int(count) > limit {
		return limit
	}
	return int(count)
}
