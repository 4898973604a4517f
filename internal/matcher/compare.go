package matcher

import (
	"sort"
	"strconv"
	"strings"

	"github.com/CZ-NIC/respdiff-go/internal/respfmt"
	"github.com/CZ-NIC/respdiff-go/internal/wire"
)

// Compare is the matcher's sole entry point: given two recorded responses
// to the same query and the configured criteria list, it returns the set
// of field-level mismatches between them. It never fails — a DNS parse
// failure inside a Data response is itself represented as a Malformed*
// mismatch, never a Go error.
func Compare(expected, got respfmt.ServerResponse, criteria []DiffCriteria) []Mismatch {
	switch {
	case expected.Timeout && got.Timeout:
		return nil
	case expected.Timeout:
		return []Mismatch{{Kind: KindTimeoutExpected, Exp: "timeout", Got: renderKind(got)}}
	case got.Timeout:
		return []Mismatch{{Kind: KindTimeoutGot, Exp: renderKind(expected), Got: "timeout"}}
	case expected.Malformed && got.Malformed:
		return []Mismatch{{Kind: KindMalformedBoth, Exp: "malformed", Got: "malformed"}}
	case expected.Malformed:
		return []Mismatch{{Kind: KindMalformedExpected, Exp: "malformed", Got: renderKind(got)}}
	case got.Malformed:
		return []Mismatch{{Kind: KindMalformedGot, Exp: renderKind(expected), Got: "malformed"}}
	}

	var out []Mismatch
	for _, c := range criteria {
		var (
			m  Mismatch
			ok bool
		)
		switch c {
		case CriterionOpcode:
			m, ok = evalOpcode(expected.Message, got.Message)
		case CriterionRcode:
			m, ok = evalRcode(expected.Message, got.Message)
		case CriterionFlags:
			m, ok = evalFlags(expected.Message, got.Message)
		case CriterionQuestion:
			m, ok = evalQuestion(expected.Message, got.Message)
		case CriterionAnswerTypes:
			m, ok = evalAnswerTypes(expected.Message, got.Message)
		case CriterionAnswerRrsigs:
			m, ok = evalAnswerRrsigs(expected.Message, got.Message)
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}

func renderKind(r respfmt.ServerResponse) string {
	switch {
	case r.Timeout:
		return "timeout"
	case r.Malformed:
		return "malformed"
	default:
		return "answer"
	}
}

func evalOpcode(e, g wire.Packet) (Mismatch, bool) {
	eo, go_ := wire.OpcodeFromFlags(e.Header.Flags), wire.OpcodeFromFlags(g.Header.Flags)
	if eo == go_ {
		return Mismatch{}, false
	}
	return Mismatch{Kind: KindOpcode, Exp: renderOpcode(eo), Got: renderOpcode(go_)}, true
}

func evalRcode(e, g wire.Packet) (Mismatch, bool) {
	er, gr := wire.RCodeFromFlags(e.Header.Flags), wire.RCodeFromFlags(g.Header.Flags)
	if er == gr {
		return Mismatch{}, false
	}
	return Mismatch{Kind: KindRcode, Exp: renderRcode(er), Got: renderRcode(gr)}, true
}

func evalFlags(e, g wire.Packet) (Mismatch, bool) {
	if e.Header.Flags == g.Header.Flags {
		return Mismatch{}, false
	}
	return Mismatch{Kind: KindFlags, Exp: renderFlags(e.Header.Flags), Got: renderFlags(g.Header.Flags)}, true
}

func evalQuestion(e, g wire.Packet) (Mismatch, bool) {
	if len(e.Questions) != 1 || len(g.Questions) != 1 {
		return Mismatch{
			Kind: KindQuestionCount,
			Exp:  strconv.Itoa(len(e.Questions)),
			Got:  strconv.Itoa(len(g.Questions)),
		}, true
	}
	eq, gq := e.Questions[0], g.Questions[0]
	if eq.Name == gq.Name && eq.Type == gq.Type && eq.Class == gq.Class {
		return Mismatch{}, false
	}
	return Mismatch{Kind: KindQuestion, Exp: renderQuestion(eq), Got: renderQuestion(gq)}, true
}

func evalAnswerTypes(e, g wire.Packet) (Mismatch, bool) {
	es, gs := answerTypeSet(e), answerTypeSet(g)
	if sameStringSet(es, gs) {
		return Mismatch{}, false
	}
	return Mismatch{Kind: KindAnswerTypes, Exp: strings.Join(es, " "), Got: strings.Join(gs, " ")}, true
}

func evalAnswerRrsigs(e, g wire.Packet) (Mismatch, bool) {
	es, gs := answerRrsigSet(e), answerRrsigSet(g)
	if sameStringSet(es, gs) {
		return Mismatch{}, false
	}
	return Mismatch{Kind: KindAnswerRrsigs, Exp: strings.Join(es, " "), Got: strings.Join(gs, " ")}, true
}

// answerTypeSet returns the sorted, deduplicated, uppercase mnemonics of
// every distinct record type in the answer section, excluding RRSIG (which
// AnswerRrsigs reports on separately).
func answerTypeSet(p wire.Packet) []string {
	seen := map[wire.RecordType]struct{}{}
	for _, rr := range p.Answers {
		t := wire.RecordType(rr.Type)
		if t == wire.TypeRRSIG {
			continue
		}
		seen[t] = struct{}{}
	}
	return sortedTypeNames(seen)
}

// answerRrsigSet returns the sorted "RRSIG(TYPE)" tokens for the distinct
// type_covered values among RRSIG records in the answer section.
func answerRrsigSet(p wire.Packet) []string {
	seen := map[wire.RecordType]struct{}{}
	for _, rr := range p.Answers {
		if tc, ok := rr.TypeCovered(); ok {
			seen[tc] = struct{}{}
		}
	}
	names := sortedTypeNames(seen)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "RRSIG(" + n + ")"
	}
	return out
}

func sortedTypeNames(set map[wire.RecordType]struct{}) []string {
	names := make([]string, 0, len(set))
	for t := range set {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return names
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var opcodeNames = map[uint16]string{0: "QUERY", 1: "IQUERY", 2: "STATUS"}

func renderOpcode(op uint16) string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return "OPCODE" + strconv.Itoa(int(op))
}

var rcodeNames = map[uint16]string{
	0: "NOERROR", 1: "FORMERR", 2: "SERVFAIL", 3: "NXDOMAIN", 4: "NOTIMP", 5: "REFUSED",
}

func renderRcode(rc uint16) string {
	if s, ok := rcodeNames[rc]; ok {
		return s
	}
	return "RCODE" + strconv.Itoa(int(rc))
}

func renderFlags(flags uint16) string {
	return "0x" + strconv.FormatUint(uint64(flags), 16)
}

func renderQuestion(q wire.Question) string {
	return q.Name + " " + wire.RecordType(q.Type).String() + " " + strconv.Itoa(int(q.Class))
}
