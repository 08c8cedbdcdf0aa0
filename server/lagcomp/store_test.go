package lagcomp

import "testing"

func TestStoreRetention(t *testing.T) {
	s := NewStore(1, 0.5, 10)
	s.Record(1, sampleAt(0, 0))
	s.Record(2, sampleAt(0, 0))

	s.Retire(2, 1.0)

	if dropped := s.Trim(1.2); dropped != 0 {
		t.Fatalf("dropped %d before retention expired", dropped)
	}
	if _, ok := s.SamplesFor(2); !ok {
		t.Fatal("retired history should still be readable")
	}
	if dropped := s.Trim(1.5); dropped != 1 {
		t.Fatalf("dropped %d, want 1", dropped)
	}
	if _, ok := s.HistoryFor(2); ok {
		t.Fatal("expired history still present")
	}
	if ids := s.IDs(); len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("ids = %v, want [1]", ids)
	}
}

func TestStoreActivateRevivesRetired(t *testing.T) {
	s := NewStore(1, 0, 10)
	s.Record(3, sampleAt(0, 0))
	s.Retire(3, 0)
	s.Activate(3)

	if dropped := s.Trim(10); dropped != 0 {
		t.Fatalf("revived history dropped")
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestStoreTrimsHistories(t *testing.T) {
	s := NewStore(0.2, 1, 10)
	for i := 0; i <= 10; i++ {
		s.Record(1, sampleAt(float64(i)*0.1, float64(i)))
	}
	s.Trim(1.05)

	samples, _ := s.SamplesFor(1)
	if len(samples) != 3 {
		t.Fatalf("kept %d samples, want 3", len(samples))
	}
	// The copy is independent of the store.
	samples[0].ServerTime = -1
	again, _ := s.SamplesFor(1)
	if again[0].ServerTime == -1 {
		t.Fatal("SamplesFor returned a shared slice")
	}
}
