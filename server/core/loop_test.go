package core

import (
	"testing"
	"time"
)

func TestGameLoopStopWaitsForRun(t *testing.T) {
	s := newTestServer(t)
	loop := NewGameLoop(s, 30)

	// Stopping a loop that never ran returns at once, and twice is fine.
	loop.Stop()
	loop.Stop()

	returned := make(chan struct{})
	go func() {
		loop.Run()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Run kept going after Stop")
	}

	stopped := make(chan struct{})
	go func() {
		loop.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after Run returned")
	}
	if loop.Now() != 0 {
		t.Fatalf("stopped loop advanced to %v", loop.Now())
	}
}

func TestStepVerifiesBeforeAdvancing(t *testing.T) {
	s := newTestServer(t)
	var seen []float64
	s.commands.Push(func(s *Server) { seen = append(seen, s.Now()) })
	s.loop.Step()
	s.commands.Push(func(s *Server) { seen = append(seen, s.Now()) })
	now := s.loop.Step()

	if len(seen) != 2 || seen[0] != 0 || seen[1] != s.loop.dt {
		t.Fatalf("commands ran at %v, want [0 %v]", seen, s.loop.dt)
	}
	if now != 2*s.loop.dt {
		t.Fatalf("Step returned %v, want %v", now, 2*s.loop.dt)
	}
}
