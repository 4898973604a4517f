// Package diffengine implements the parallel two-pass differential
// comparison described for the core: pass 1 detects queries where the
// non-target servers already disagree with each other, pass 2 compares the
// target against a reference other server, and a final sequential
// aggregation keeps only the target disagreements that pass 1 didn't
// already flag as upstream-unstable.
package diffengine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/CZ-NIC/respdiff-go/internal/matcher"
	"github.com/CZ-NIC/respdiff-go/internal/respfmt"
)

// Result is the raw output of Run, before the report writer folds in
// start/end times and totals.
type Result struct {
	OthersDisagreements map[uint32]struct{}
	TargetDisagreements map[matcher.Field]map[matcher.Mismatch]map[uint32]struct{}
}

// Workers bounds the number of goroutines each pass fans out over. Zero
// means runtime.NumCPU(), matching the per-core sizing the transceiver's
// originating udp_server.go uses for its own goroutine pools.
type Workers int

// Run executes both passes over lists and returns the aggregated
// disagreement sets. Every ResponseList must have exactly len(servers)
// replies; a list with any other count fails the run with an error.
func Run(ctx context.Context, lists []respfmt.ResponseList, idx Indices, criteria []matcher.DiffCriteria, workers Workers) (*Result, error) {
	n := int(workers)
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > len(lists) {
		n = len(lists)
	}
	if n < 1 {
		n = 1
	}
	chunks := chunkIndices(len(lists), n)

	othersDisagreements, err := runPass1(ctx, lists, idx, criteria, chunks)
	if err != nil {
		return nil, err
	}

	pass2, err := runPass2(ctx, lists, idx, criteria, chunks)
	if err != nil {
		return nil, err
	}

	targetDisagreements := map[matcher.Field]map[matcher.Mismatch]map[uint32]struct{}{}
	for _, e := range pass2 {
		if _, skip := othersDisagreements[e.key]; skip {
			continue
		}
		for _, m := range e.diff {
			f := m.Field()
			byMismatch, ok := targetDisagreements[f]
			if !ok {
				byMismatch = map[matcher.Mismatch]map[uint32]struct{}{}
				targetDisagreements[f] = byMismatch
			}
			keys, ok := byMismatch[m]
			if !ok {
				keys = map[uint32]struct{}{}
				byMismatch[m] = keys
			}
			keys[e.key] = struct{}{}
		}
	}

	return &Result{OthersDisagreements: othersDisagreements, TargetDisagreements: targetDisagreements}, nil
}

func runPass1(ctx context.Context, lists []respfmt.ResponseList, idx Indices, criteria []matcher.DiffCriteria, chunks [][2]int) (map[uint32]struct{}, error) {
	result := map[uint32]struct{}{}
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			local := map[uint32]struct{}{}
			for i := chunk[0]; i < chunk[1]; i++ {
				rl := lists[i]
				if err := checkReplyCount(rl, idx); err != nil {
					return err
				}
				for _, pair := range idx.PairsOthers {
					if len(matcher.Compare(rl.Replies[pair[0]], rl.Replies[pair[1]], criteria)) > 0 {
						local[rl.Key] = struct{}{}
						break
					}
				}
			}
			mu.Lock()
			for k := range local {
				result[k] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

type pass2Entry struct {
	key  uint32
	diff []matcher.Mismatch
}

func runPass2(ctx context.Context, lists []respfmt.ResponseList, idx Indices, criteria []matcher.DiffCriteria, chunks [][2]int) ([]pass2Entry, error) {
	var (
		all []pass2Entry
		mu  sync.Mutex
	)

	g, _ := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			var local []pass2Entry
			for i := chunk[0]; i < chunk[1]; i++ {
				rl := lists[i]
				if err := checkReplyCount(rl, idx); err != nil {
					return err
				}
				diff := matcher.Compare(rl.Replies[idx.PairTarget[0]], rl.Replies[idx.PairTarget[1]], criteria)
				if len(diff) > 0 {
					local = append(local, pass2Entry{key: rl.Key, diff: diff})
				}
			}
			mu.Lock()
			all = append(all, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

func checkReplyCount(rl respfmt.ResponseList, idx Indices) error {
	maxPos := idx.Target
	for _, o := range idx.Others {
		if o > maxPos {
			maxPos = o
		}
	}
	if len(rl.Replies) != maxPos+1 {
		return fmt.Errorf("response list for key %d has %d replies, want %d", rl.Key, len(rl.Replies), maxPos+1)
	}
	return nil
}

// chunkIndices splits [0,total) into n contiguous half-open ranges of
// roughly equal size.
func chunkIndices(total, n int) [][2]int {
	if n <= 0 {
		n = 1
	}
	chunks := make([][2]int, 0, n)
	size := (total + n - 1) / n
	if size < 1 {
		size = 1
	}
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, [2]int{start, end})
	}
	if len(chunks) == 0 {
		chunks = append(chunks, [2]int{0, 0})
	}
	return chunks
}
