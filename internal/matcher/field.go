// Package matcher compares two recorded server responses under a
// configured list of DNS-field criteria and classifies the differences it
// finds. It is a pure function of its inputs — no I/O, no shared state —
// matching the differential engine's requirement that each worker's
// comparison be independently reproducible.
package matcher

// Field is the coarse classification a Mismatch projects onto; it is the
// outer key of the target-disagreements aggregation in a Report.
type Field int

const (
	FieldTimeout Field = iota
	FieldMalformed
	FieldOpcode
	FieldRcode
	FieldFlags
	FieldQuestion
	FieldAnswerTypes
	FieldAnswerRrsigs
)

// String renders the lowercase tag used as a JSON object key in the report.
func (f Field) String() string {
	switch f {
	case FieldTimeout:
		return "timeout"
	case FieldMalformed:
		return "malformed"
	case FieldOpcode:
		return "opcode"
	case FieldRcode:
		return "rcode"
	case FieldFlags:
		return "flags"
	case FieldQuestion:
		return "question"
	case FieldAnswerTypes:
		return "answertypes"
	case FieldAnswerRrsigs:
		return "answerrrsigs"
	default:
		return "unknown"
	}
}

// DiffCriteria is the closed set of comparison modes configurable under
// [diff] criteria. It is a tagged enum rather than a polymorphic interface:
// the set never grows at runtime, so a single switch is the idiomatic
// dispatch (see the package-level Compare for the switch itself).
type DiffCriteria int

const (
	CriterionOpcode DiffCriteria = iota
	CriterionRcode
	CriterionFlags
	CriterionQuestion
	CriterionAnswerTypes
	CriterionAnswerRrsigs
)

// ParseCriterion maps a config-file token (as listed under [diff] criteria)
// to its DiffCriteria value. ok is false for any unrecognized token.
func ParseCriterion(token string) (DiffCriteria, bool) {
	switch token {
	case "opcode":
		return CriterionOpcode, true
	case "rcode":
		return CriterionRcode, true
	case "flags":
		return CriterionFlags, true
	case "question":
		return CriterionQuestion, true
	case "answertypes":
		return CriterionAnswerTypes, true
	case "answerrrsigs":
		return CriterionAnswerRrsigs, true
	default:
		return 0, false
	}
}
