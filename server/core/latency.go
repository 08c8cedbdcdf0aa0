package core

import (
	"sync"
	"time"

	"github.com/automoto/rewind/server/lagcomp"
	"github.com/automoto/rewind/shared/messages"
)

type pendingPing struct {
	nonce  uint32
	sentAt time.Time
}

// LatencyTracker measures each shooter's round-trip time from server
// initiated pings. Samples are smoothed as (rtt*7 + sample) / 8.
//
// Ping replies are handled on network goroutines while the simulation reads
// RTTs, so all methods are safe for concurrent use.
type LatencyTracker struct {
	mu      sync.Mutex
	pending map[lagcomp.EntityID]pendingPing
	rtt     map[lagcomp.EntityID]float64
	nonce   uint32
	now     func() time.Time
}

var _ lagcomp.LatencySource = (*LatencyTracker)(nil)

func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{
		pending: make(map[lagcomp.EntityID]pendingPing),
		rtt:     make(map[lagcomp.EntityID]float64),
		now:     time.Now,
	}
}

// Begin starts a ping to id and returns the request to send. An unanswered
// earlier ping is abandoned.
func (l *LatencyTracker) Begin(id lagcomp.EntityID, serverTime float64) messages.PingRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonce++
	l.pending[id] = pendingPing{nonce: l.nonce, sentAt: l.now()}
	return messages.PingRequest{Nonce: l.nonce, ServerTime: serverTime}
}

// Complete matches a reply against the outstanding ping of id and folds the
// measured round trip into the estimate. Stale or unknown replies are
// ignored.
func (l *LatencyTracker) Complete(id lagcomp.EntityID, reply messages.PingReply) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pending[id]
	if !ok || p.nonce != reply.Nonce {
		return 0, false
	}
	delete(l.pending, id)
	sample := float64(l.now().Sub(p.sentAt)) / float64(time.Millisecond)
	return l.observeLocked(id, sample), true
}

// Observe folds one round-trip sample in milliseconds into id's estimate and
// returns the new estimate.
func (l *LatencyTracker) Observe(id lagcomp.EntityID, sampleMs float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.observeLocked(id, sampleMs)
}

func (l *LatencyTracker) observeLocked(id lagcomp.EntityID, sample float64) float64 {
	if sample < 0 {
		sample = 0
	}
	rtt, ok := l.rtt[id]
	if !ok {
		rtt = sample
	} else {
		rtt = (rtt*7 + sample) / 8
	}
	l.rtt[id] = rtt
	return rtt
}

// RTT returns the smoothed round trip of id in milliseconds.
func (l *LatencyTracker) RTT(id lagcomp.EntityID) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rtt, ok := l.rtt[id]
	return rtt, ok
}

// Forget drops everything known about id.
func (l *LatencyTracker) Forget(id lagcomp.EntityID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
	delete(l.rtt, id)
}
