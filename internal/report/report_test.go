package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CZ-NIC/respdiff-go/internal/diffengine"
	"github.com/CZ-NIC/respdiff-go/internal/matcher"
)

func TestBuildRendersExpectedShape(t *testing.T) {
	result := &diffengine.Result{
		OthersDisagreements: map[uint32]struct{}{4: {}},
		TargetDisagreements: map[matcher.Field]map[matcher.Mismatch]map[uint32]struct{}{
			matcher.FieldRcode: {
				matcher.Mismatch{Kind: matcher.KindRcode, Exp: "NOERROR", Got: "SERVFAIL"}: {2: {}},
			},
		},
	}

	r := Build(result, 1000, 2000, 10, 9)
	assert.Equal(t, uint32(1000), r.StartTime)
	assert.Equal(t, uint32(2000), r.EndTime)
	assert.Equal(t, uint64(10), r.TotalQueries)
	assert.Equal(t, uint64(9), r.TotalAnswers)
	assert.Equal(t, []uint32{4}, r.OtherDisagreements.Queries)

	bucket, ok := r.TargetDisagreements.Fields["rcode"]
	require.True(t, ok)
	require.Len(t, bucket.Mismatches, 1)
	assert.Equal(t, "NOERROR", bucket.Mismatches[0].ExpVal)
	assert.Equal(t, "SERVFAIL", bucket.Mismatches[0].GotVal)
	assert.Equal(t, []uint32{2}, bucket.Mismatches[0].Queries)
}

func TestMarshalIndentMatchesSpecShape(t *testing.T) {
	result := &diffengine.Result{
		OthersDisagreements: map[uint32]struct{}{},
		TargetDisagreements: map[matcher.Field]map[matcher.Mismatch]map[uint32]struct{}{},
	}
	r := Build(result, 1, 2, 0, 0)

	raw, err := r.MarshalIndent()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Contains(t, decoded, "start_time")
	assert.Contains(t, decoded, "end_time")
	assert.Contains(t, decoded, "total_queries")
	assert.Contains(t, decoded, "total_answers")
	assert.Contains(t, decoded, "other_disagreements")
	assert.Contains(t, decoded, "target_disagreements")
	assert.Nil(t, decoded["summary"])
	assert.Nil(t, decoded["reprodata"])

	other := decoded["other_disagreements"].(map[string]any)
	assert.Contains(t, other, "queries")

	target := decoded["target_disagreements"].(map[string]any)
	assert.Contains(t, target, "fields")
}

func TestBuildSortsQueryKeysAndMismatches(t *testing.T) {
	result := &diffengine.Result{
		OthersDisagreements: map[uint32]struct{}{9: {}, 1: {}, 5: {}},
		TargetDisagreements: map[matcher.Field]map[matcher.Mismatch]map[uint32]struct{}{
			matcher.FieldRcode: {
				matcher.Mismatch{Kind: matcher.KindRcode, Exp: "NOERROR", Got: "SERVFAIL"}: {7: {}, 3: {}},
				matcher.Mismatch{Kind: matcher.KindRcode, Exp: "FORMERR", Got: "NOERROR"}:  {2: {}},
			},
		},
	}
	r := Build(result, 0, 0, 0, 0)
	assert.Equal(t, []uint32{1, 5, 9}, r.OtherDisagreements.Queries)

	bucket := r.TargetDisagreements.Fields["rcode"]
	require.Len(t, bucket.Mismatches, 2)
	assert.Equal(t, "FORMERR", bucket.Mismatches[0].ExpVal)
	assert.Equal(t, []uint32{3, 7}, bucket.Mismatches[1].Queries)
}
