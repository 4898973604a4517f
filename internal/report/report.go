// Package report builds the final JSON report from a diffengine.Result and
// the store's run metadata. Keys are the lowercase field tags used
// throughout the matcher package, and mismatch buckets list query keys in
// ascending order for deterministic output.
package report

import (
	"encoding/json"
	"sort"

	"github.com/CZ-NIC/respdiff-go/internal/diffengine"
)

// Report is the top-level document written to disk by the diff-answers
// subcommand.
type Report struct {
	StartTime          uint32              `json:"start_time"`
	EndTime            uint32              `json:"end_time"`
	TotalQueries       uint64              `json:"total_queries"`
	TotalAnswers       uint64              `json:"total_answers"`
	OtherDisagreements otherDisagreements  `json:"other_disagreements"`
	TargetDisagreements targetDisagreements `json:"target_disagreements"`
	Summary            json.RawMessage     `json:"summary"`
	ReproData          json.RawMessage     `json:"reprodata"`
}

type otherDisagreements struct {
	Queries []uint32 `json:"queries"`
}

type targetDisagreements struct {
	Fields map[string]fieldBucket `json:"fields"`
}

type fieldBucket struct {
	Mismatches []mismatchEntry `json:"mismatches"`
}

type mismatchEntry struct {
	ExpVal  string   `json:"exp_val"`
	GotVal  string   `json:"got_val"`
	Queries []uint32 `json:"queries"`
}

// null JSON literals for the two fields the core never populates; the
// report consumer (msgdiff and friends) owns summary/reprodata generation.
var jsonNull = json.RawMessage("null")

// Build composes a Report from the engine's two-pass result and the run's
// recorded time range / counts, rendering every field as lowercase JSON
// keys and sorting query-key lists for reproducible output.
func Build(result *diffengine.Result, startTime, endTime uint32, totalQueries, totalAnswers uint64) Report {
	others := make([]uint32, 0, len(result.OthersDisagreements))
	for k := range result.OthersDisagreements {
		others = append(others, k)
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })

	fields := make(map[string]fieldBucket, len(result.TargetDisagreements))
	for field, byMismatch := range result.TargetDisagreements {
		bucket := fieldBucket{Mismatches: make([]mismatchEntry, 0, len(byMismatch))}
		for m, keys := range byMismatch {
			qs := make([]uint32, 0, len(keys))
			for k := range keys {
				qs = append(qs, k)
			}
			sort.Slice(qs, func(i, j int) bool { return qs[i] < qs[j] })
			bucket.Mismatches = append(bucket.Mismatches, mismatchEntry{
				ExpVal:  m.Exp,
				GotVal:  m.Got,
				Queries: qs,
			})
		}
		sort.Slice(bucket.Mismatches, func(i, j int) bool {
			a, b := bucket.Mismatches[i], bucket.Mismatches[j]
			if a.ExpVal != b.ExpVal {
				return a.ExpVal < b.ExpVal
			}
			return a.GotVal < b.GotVal
		})
		fields[field.String()] = bucket
	}

	return Report{
		StartTime:           startTime,
		EndTime:             endTime,
		TotalQueries:        totalQueries,
		TotalAnswers:        totalAnswers,
		OtherDisagreements:  otherDisagreements{Queries: others},
		TargetDisagreements: targetDisagreements{Fields: fields},
		Summary:             jsonNull,
		ReproData:           jsonNull,
	}
}

// MarshalIndent renders the report the way the CLI writes it to disk:
// two-space indented.
func (r Report) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
