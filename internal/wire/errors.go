// Package wire provides DNS message parsing and encoding used for
// differential comparison of resolver responses. It implements just enough
// of RFC 1035 (and its DNSSEC/EDNS extensions) to extract the header fields,
// the single question, and the answer-section record types that the matcher
// cares about — it is not a general-purpose DNS library.
package wire

import "errors"

// ErrMessage is the sentinel wrapped by every wire-format parse/encode
// failure. Callers match on it with errors.Is; the wrapped text carries the
// operational detail.
var ErrMessage = errors.New("dns wire error")
