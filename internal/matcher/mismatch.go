package matcher

// Kind enumerates every distinct mismatch shape the matcher can emit. It is
// deliberately finer-grained than Field: several Kinds project onto the
// same Field (e.g. QuestionCount and Question both project onto
// FieldQuestion).
type Kind int

const (
	KindTimeoutExpected Kind = iota
	KindTimeoutGot
	KindMalformedBoth
	KindMalformedExpected
	KindMalformedGot
	KindOpcode
	KindRcode
	KindFlags
	KindQuestionCount
	KindQuestion
	KindAnswerTypes
	KindAnswerRrsigs
)

// Mismatch is a single observed difference between two server responses
// for one field. It is a plain comparable value (a Kind and two strings) so it
// can be used directly as a map key, matching the report's
// target_disagreements[Field][Mismatch] -> set-of-QKey shape.
type Mismatch struct {
	Kind Kind
	// Exp and Got are the pre-rendered report strings — the matcher
	// never exposes the raw DNS values it compared, only their
	// rendering, since rendering is the only consumer.
	Exp string
	Got string
}

// Field projects a Mismatch onto its coarse classification.
func (m Mismatch) Field() Field {
	switch m.Kind {
	case KindTimeoutExpected, KindTimeoutGot:
		return FieldTimeout
	case KindMalformedBoth, KindMalformedExpected, KindMalformedGot:
		return FieldMalformed
	case KindOpcode:
		return FieldOpcode
	case KindRcode:
		return FieldRcode
	case KindFlags:
		return FieldFlags
	case KindQuestionCount, KindQuestion:
		return FieldQuestion
	case KindAnswerTypes:
		return FieldAnswerTypes
	case KindAnswerRrsigs:
		return FieldAnswerRrsigs
	default:
		return FieldMalformed
	}
}
