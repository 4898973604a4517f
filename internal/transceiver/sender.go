package transceiver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/CZ-NIC/respdiff-go/internal/helpers"
	"github.com/CZ-NIC/respdiff-go/internal/pool"
	"github.com/CZ-NIC/respdiff-go/internal/respfmt"
	"github.com/CZ-NIC/respdiff-go/internal/wire"
)

// recvBufSize is the maximum UDP datagram this sender will accept; sized
// for headroom rather than any single upstream's EDNS-negotiated default,
// since the transceiver has no control over what an upstream advertises.
const recvBufSize = 65535

// Sender holds the configured server list and a receive-buffer pool shared
// across every subtask. It dials no sockets itself: each sendOne call binds
// its own ephemeral socket, exclusive to that one query/server pair, so that
// concurrently in-flight queries to the same server never share a live
// connection (UDP has no transaction-ID correlation at this layer — two
// queries racing on one socket could otherwise read each other's reply). It
// has no health/failover machinery: a send-and-wait subtask here either
// yields a reply or is reported as a timeout (any resolve, dial, write or
// read failure counts as a timeout), and neither outcome retries or marks a
// server unusable for subsequent queries.
type Sender struct {
	servers []ServerEndpoint
	timeout time.Duration
	bufs    *pool.Pool[[]byte]
}

// NewSender prepares a sender for the given servers. No sockets are dialed
// here; each query dials its own.
func NewSender(servers []ServerEndpoint, timeout time.Duration) *Sender {
	return &Sender{
		servers: servers,
		timeout: timeout,
		bufs: pool.New(func() []byte {
			return make([]byte, recvBufSize)
		}),
	}
}

// Close is a no-op: Sender holds no long-lived sockets. It is kept so
// callers can defer it without caring whether a future version of Sender
// grows a shared resource that needs releasing.
func (s *Sender) Close() {}

// sendOne performs a single send-and-wait exchange against the server at
// index i: bind an ephemeral socket exclusive to this call, connect it to
// the server, set a deadline that respects both the configured timeout and
// ctx's own deadline, write the query, record a monotonic send timestamp,
// and block for one read. It never retries and never falls back to TCP —
// every transport is currently dispatched through this same UDP path.
func (s *Sender) sendOne(ctx context.Context, i int, q Query) respfmt.ServerResponse {
	srv := s.servers[i]
	network := srv.Network
	if network == "" {
		network = "udp"
	}
	addr, err := net.ResolveUDPAddr(network, srv.Address)
	if err != nil {
		return respfmt.ServerResponse{Timeout: true}
	}
	c, err := net.DialUDP(network, nil, addr)
	if err != nil {
		return respfmt.ServerResponse{Timeout: true}
	}
	defer c.Close()

	deadline := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = c.SetDeadline(deadline)

	if _, err := c.Write(q.Wire); err != nil {
		return respfmt.ServerResponse{Timeout: true}
	}
	sendTS := time.Now()

	buf := s.bufs.Get()
	defer s.bufs.Put(buf)

	n, err := c.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return respfmt.ServerResponse{Timeout: true}
		}
		return respfmt.ServerResponse{Timeout: true}
	}
	delay := time.Since(sendTS)

	payload := make([]byte, n)
	copy(payload, buf[:n])

	delayUs := helpers.ClampIntToUint32(int(delay.Microseconds()))
	pkt, perr := wire.ParsePacket(payload)
	if perr != nil {
		return respfmt.ServerResponse{Malformed: true, Delay: delayUs, Wire: payload}
	}
	return respfmt.ServerResponse{Delay: delayUs, Wire: payload, Message: pkt}
}

// fanOut launches one sendOne subtask per server concurrently and
// assembles the results in declared-server order: a ResponseList's
// positions always correspond to server declaration order, independent of
// which subtask returned first.
func fanOut(ctx context.Context, s *Sender, q Query, servers []ServerEndpoint) []respfmt.ServerResponse {
	replies := make([]respfmt.ServerResponse, len(servers))
	done := make(chan struct{})
	remaining := len(servers)
	if remaining == 0 {
		return replies
	}

	for i := range servers {
		go func(i int) {
			replies[i] = s.sendOne(ctx, i, q)
			done <- struct{}{}
		}(i)
	}

	for remaining > 0 {
		<-done
		remaining--
	}
	return replies
}
