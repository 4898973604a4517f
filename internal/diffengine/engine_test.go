package diffengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CZ-NIC/respdiff-go/internal/matcher"
	"github.com/CZ-NIC/respdiff-go/internal/respfmt"
	"github.com/CZ-NIC/respdiff-go/internal/wire"
)

var rcodeCriteria = []matcher.DiffCriteria{matcher.CriterionRcode}

func noerrorReply(t *testing.T, rcode uint16) respfmt.ServerResponse {
	t.Helper()
	p := wire.Packet{
		Header:    wire.Header{Flags: wire.QRFlag | rcode},
		Questions: []wire.Question{{Name: "example.com", Type: uint16(wire.TypeA), Class: uint16(wire.ClassIN)}},
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	msg, err := wire.ParsePacket(b)
	require.NoError(t, err)
	return respfmt.ServerResponse{Wire: b, Message: msg}
}

func timeoutReply() respfmt.ServerResponse { return respfmt.ServerResponse{Timeout: true} }

func TestPrepareIndicesInvalidTarget(t *testing.T) {
	_, err := PrepareIndices([]string{"a", "b"}, "c")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidServerName)
}

func TestPrepareIndicesTooFewServers(t *testing.T) {
	_, err := PrepareIndices([]string{"a"}, "a")
	require.Error(t, err)
}

func TestPrepareIndicesTwoServers(t *testing.T) {
	idx, err := PrepareIndices([]string{"a", "t"}, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Target)
	assert.Equal(t, []int{0}, idx.Others)
	assert.Equal(t, [2]int{0, 1}, idx.PairTarget)
	assert.Empty(t, idx.PairsOthers)
}

// Scenario 1: all three NOERROR -> report contains no entries.
func TestEngineScenarioAllAgree(t *testing.T) {
	idx, err := PrepareIndices([]string{"a", "b", "t"}, "t")
	require.NoError(t, err)
	lists := []respfmt.ResponseList{
		{Key: 1, Replies: []respfmt.ServerResponse{noerrorReply(t, 0), noerrorReply(t, 0), noerrorReply(t, 0)}},
	}
	res, err := Run(context.Background(), lists, idx, rcodeCriteria, 0)
	require.NoError(t, err)
	assert.Empty(t, res.OthersDisagreements)
	assert.Empty(t, res.TargetDisagreements)
}

// Scenario 2: A,B NOERROR, T SERVFAIL -> one rcode entry, not upstream-unstable.
func TestEngineScenarioTargetDisagrees(t *testing.T) {
	idx, err := PrepareIndices([]string{"a", "b", "t"}, "t")
	require.NoError(t, err)
	lists := []respfmt.ResponseList{
		{Key: 42, Replies: []respfmt.ServerResponse{noerrorReply(t, 0), noerrorReply(t, 0), noerrorReply(t, 2)}},
	}
	res, err := Run(context.Background(), lists, idx, rcodeCriteria, 0)
	require.NoError(t, err)
	assert.Empty(t, res.OthersDisagreements)

	mismatches := res.TargetDisagreements[matcher.FieldRcode]
	require.Len(t, mismatches, 1)
	for m, keys := range mismatches {
		assert.Equal(t, "NOERROR", m.Exp)
		assert.Equal(t, "SERVFAIL", m.Got)
		assert.Contains(t, keys, uint32(42))
	}
}

// Scenario 3: A NOERROR, B SERVFAIL, T SERVFAIL -> upstream-unstable, not target.
func TestEngineScenarioUpstreamUnstable(t *testing.T) {
	idx, err := PrepareIndices([]string{"a", "b", "t"}, "t")
	require.NoError(t, err)
	lists := []respfmt.ResponseList{
		{Key: 7, Replies: []respfmt.ServerResponse{noerrorReply(t, 0), noerrorReply(t, 2), noerrorReply(t, 2)}},
	}
	res, err := Run(context.Background(), lists, idx, rcodeCriteria, 0)
	require.NoError(t, err)
	assert.Contains(t, res.OthersDisagreements, uint32(7))
	assert.Empty(t, res.TargetDisagreements)
}

// Scenario 4: A times out, B/T NOERROR -> (A,B) disagree, goes to others.
func TestEngineScenarioOtherTimesOut(t *testing.T) {
	idx, err := PrepareIndices([]string{"a", "b", "t"}, "t")
	require.NoError(t, err)
	lists := []respfmt.ResponseList{
		{Key: 9, Replies: []respfmt.ServerResponse{timeoutReply(), noerrorReply(t, 0), noerrorReply(t, 0)}},
	}
	res, err := Run(context.Background(), lists, idx, rcodeCriteria, 0)
	require.NoError(t, err)
	assert.Contains(t, res.OthersDisagreements, uint32(9))
	assert.Empty(t, res.TargetDisagreements)
}

// Scenario 5: A,B NOERROR, T malformed -> target_disagreements["malformed"].
func TestEngineScenarioTargetMalformed(t *testing.T) {
	idx, err := PrepareIndices([]string{"a", "b", "t"}, "t")
	require.NoError(t, err)
	lists := []respfmt.ResponseList{
		{Key: 11, Replies: []respfmt.ServerResponse{noerrorReply(t, 0), noerrorReply(t, 0), {Malformed: true}}},
	}
	res, err := Run(context.Background(), lists, idx, rcodeCriteria, 0)
	require.NoError(t, err)
	assert.Empty(t, res.OthersDisagreements)

	mismatches := res.TargetDisagreements[matcher.FieldMalformed]
	require.Len(t, mismatches, 1)
	for m, keys := range mismatches {
		assert.Equal(t, "answer", m.Exp)
		assert.Equal(t, "malformed", m.Got)
		assert.Contains(t, keys, uint32(11))
	}
}

func TestEngineDisjointSets(t *testing.T) {
	idx, err := PrepareIndices([]string{"a", "b", "t"}, "t")
	require.NoError(t, err)
	lists := []respfmt.ResponseList{
		{Key: 1, Replies: []respfmt.ServerResponse{noerrorReply(t, 0), noerrorReply(t, 0), noerrorReply(t, 0)}},
		{Key: 2, Replies: []respfmt.ServerResponse{noerrorReply(t, 0), noerrorReply(t, 0), noerrorReply(t, 2)}},
		{Key: 3, Replies: []respfmt.ServerResponse{noerrorReply(t, 0), noerrorReply(t, 2), noerrorReply(t, 2)}},
	}
	res, err := Run(context.Background(), lists, idx, rcodeCriteria, 0)
	require.NoError(t, err)

	union := map[uint32]struct{}{}
	for _, byMismatch := range res.TargetDisagreements {
		for _, keys := range byMismatch {
			for k := range keys {
				union[k] = struct{}{}
			}
		}
	}
	for k := range res.OthersDisagreements {
		_, inTarget := union[k]
		assert.False(t, inTarget, "key %d present in both disagreement sets", k)
	}
}
