package core

import (
	"testing"
	"time"

	"github.com/automoto/rewind/shared/messages"
)

func TestLatencyTrackerSmoothing(t *testing.T) {
	l := NewLatencyTracker()

	if _, ok := l.RTT(1); ok {
		t.Fatal("unknown shooter should have no estimate")
	}
	if got := l.Observe(1, 80); got != 80 {
		t.Fatalf("first sample = %v, want 80", got)
	}
	if got := l.Observe(1, 160); got != 90 {
		t.Fatalf("smoothed = %v, want 90", got)
	}
}

func TestLatencyTrackerPingRoundTrip(t *testing.T) {
	l := NewLatencyTracker()
	clock := time.Unix(100, 0)
	l.now = func() time.Time { return clock }

	req := l.Begin(3, 1.5)
	if req.ServerTime != 1.5 {
		t.Fatalf("server time = %v", req.ServerTime)
	}
	clock = clock.Add(120 * time.Millisecond)

	if _, ok := l.Complete(3, messages.PingReply{Nonce: req.Nonce + 1}); ok {
		t.Fatal("reply with the wrong nonce accepted")
	}
	rtt, ok := l.Complete(3, messages.PingReply{Nonce: req.Nonce, ServerTime: req.ServerTime})
	if !ok || rtt != 120 {
		t.Fatalf("rtt = %v (%v), want 120", rtt, ok)
	}
	if _, ok := l.Complete(3, messages.PingReply{Nonce: req.Nonce}); ok {
		t.Fatal("duplicate reply accepted")
	}
}

func TestLatencyTrackerNewPingAbandonsOld(t *testing.T) {
	l := NewLatencyTracker()
	first := l.Begin(1, 0)
	second := l.Begin(1, 1)

	if _, ok := l.Complete(1, messages.PingReply{Nonce: first.Nonce}); ok {
		t.Fatal("abandoned ping accepted")
	}
	if _, ok := l.Complete(1, messages.PingReply{Nonce: second.Nonce}); !ok {
		t.Fatal("current ping rejected")
	}
}

func TestLatencyTrackerForget(t *testing.T) {
	l := NewLatencyTracker()
	l.Observe(2, 50)
	l.Forget(2)
	if _, ok := l.RTT(2); ok {
		t.Fatal("forgotten shooter still has an estimate")
	}
}
