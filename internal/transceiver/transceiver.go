// Package transceiver implements the asynchronous UDP fan-out engine: it
// walks an ordered query list, issues each query to every configured
// server concurrently, honors a global queries-per-second pacing budget,
// enforces a per-query timeout, and streams ordered ResponseLists to a
// single writer.
package transceiver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CZ-NIC/respdiff-go/internal/ratelimit"
	"github.com/CZ-NIC/respdiff-go/internal/respfmt"
)

// ServerEndpoint is one configured upstream in declared order. Transport is
// carried through for completeness (config declares udp/tcp/tls) but every
// transport is currently dispatched through the same UDP send-and-wait
// subtask.
type ServerEndpoint struct {
	Name      string
	Network   string // "udp4" or "udp6"
	Address   string // host:port
	Transport string // "udp", "tcp", or "tls" — informational only, see Sender
}

// Query is one entry from the queries table: its QKey and raw wire bytes.
type Query struct {
	Key  uint32
	Wire []byte
}

// Options configures a transceiver run.
type Options struct {
	Servers     []ServerEndpoint
	Timeout     time.Duration
	QPS         float64
	MaxTimeouts int // 0 disables the soft breaker, see timeoutTracker
	Logger      *slog.Logger
}

// Stats accumulates run-wide counters, read via Snapshot after Run returns
// (or periodically, for progress logging during a long run).
type Stats struct {
	mu              sync.Mutex
	queriesSent     uint64
	queriesAnswered uint64
	queriesTimedOut uint64
}

func (s *Stats) recordQuery(replies []respfmt.ServerResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queriesSent++
	answered, timedOut := false, false
	for _, r := range replies {
		if r.Timeout {
			timedOut = true
		} else {
			answered = true
		}
	}
	if answered {
		s.queriesAnswered++
	}
	if timedOut {
		s.queriesTimedOut++
	}
}

// Snapshot is a point-in-time read of Stats.
type Snapshot struct {
	QueriesSent     uint64
	QueriesAnswered uint64
	QueriesTimedOut uint64
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{QueriesSent: s.queriesSent, QueriesAnswered: s.queriesAnswered, QueriesTimedOut: s.queriesTimedOut}
}

// Writer receives one ResponseList per query, in arrival order (not
// necessarily query order — only positions within a ResponseList are
// ordered). It is expected to be a single consumer, since the store's
// answer-writing transaction is held by exactly one writer for the whole
// run.
type Writer func(respfmt.ResponseList) error

// Run drives the producer/pacer loop: for each query in order, wait for a
// pacing token, then spawn a fan-out task that queries every server
// concurrently and hands the assembled ResponseList to write. Run returns
// once every query has been paced in and every fan-out task has completed
// (or ctx was canceled, in which case it returns ctx.Err() after draining
// in-flight tasks).
func Run(ctx context.Context, queries []Query, opts Options, write Writer, stats *Stats) error {
	if len(opts.Servers) == 0 {
		return fmt.Errorf("transceiver: no servers configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bucket := ratelimit.New(opts.QPS, qpsBurst(opts.QPS))

	sender := NewSender(opts.Servers, opts.Timeout)
	defer sender.Close()

	var firstErr error
	var errOnce sync.Once
	recordErr := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	// The writer is a single consumer task reading results in arrival
	// order and commits its transaction once the channel closes: fan-out
	// tasks never write directly, they only ever send on this channel.
	results := make(chan respfmt.ResponseList)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for rl := range results {
			if err := write(rl); err != nil {
				recordErr(fmt.Errorf("write response list for key %d: %w", rl.Key, err))
			}
		}
	}()

	var fanOutWG sync.WaitGroup
	tracker := &timeoutTracker{max: opts.MaxTimeouts, logger: logger}

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			recordErr(err)
			break
		}
		if err := bucket.Wait(ctx); err != nil {
			recordErr(err)
			break
		}

		fanOutWG.Add(1)
		go func(q Query) {
			defer fanOutWG.Done()
			replies := fanOut(ctx, sender, q, opts.Servers)
			if stats != nil {
				stats.recordQuery(replies)
			}
			tracker.observe(q.Key, replies)
			results <- respfmt.ResponseList{Key: q.Key, Replies: replies}
		}(q)
	}

	fanOutWG.Wait()
	close(results)
	<-writerDone

	return firstErr
}

// timeoutTracker watches for opts.MaxTimeouts consecutive all-servers-timed
// -out queries. It only warns, it never aborts the run, since a per-server
// timeout is already a silently downgraded outcome rather than a fatal one.
type timeoutTracker struct {
	mu          sync.Mutex
	consecutive int
	max         int
	logger      *slog.Logger
}

func (t *timeoutTracker) observe(key uint32, replies []respfmt.ServerResponse) {
	if t.max <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if allTimedOut(replies) {
		t.consecutive++
		if t.consecutive == t.max {
			t.logger.Warn("consecutive per-query timeouts reached max_timeouts",
				"max_timeouts", t.max, "key", key)
		}
	} else {
		t.consecutive = 0
	}
}

func allTimedOut(replies []respfmt.ServerResponse) bool {
	for _, r := range replies {
		if !r.Timeout {
			return false
		}
	}
	return len(replies) > 0
}

// qpsBurst sizes the token bucket's burst to roughly one second of
// steady-state traffic, bounded to a sane minimum; it only governs how far
// pacing can get ahead of the configured rate, not the instantaneous
// fan-out concurrency (which is bounded implicitly by how fast queries are
// paced in).
func qpsBurst(qps float64) int {
	burst := int(qps)
	if burst < 1 {
		burst = 1
	}
	return burst
}
