package audit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/automoto/rewind/server/lagcomp"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

func shot(t float64, shooter lagcomp.EntityID, kind lagcomp.OutcomeKind) lagcomp.Reconciliation {
	return lagcomp.Reconciliation{
		ShotID:           uuid.New(),
		Kind:             kind,
		Shooter:          shooter,
		Target:           7,
		ServerTime:       t,
		PredictionTime:   0.1,
		ClaimDiscrepancy: 12.5,
		Start:            mgl64.Vec3{0, 0, 0},
		End:              mgl64.Vec3{100, 0, 0},
		ApplyDamage:      kind == lagcomp.ConfirmedHit,
	}
}

func TestLogStoresMismatchesOnly(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"), 16, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	l.Publish(shot(1, 1, lagcomp.ConfirmedHit))
	l.Publish(shot(2, 1, lagcomp.ClientOnlyHit))
	l.Publish(shot(3, 2, lagcomp.ServerOnlyHit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rows, err := l.Recent(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 || rows[0].Outcome != "server_only_hit" || rows[1].Outcome != "client_only_hit" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[1].Discrepancy != 12.5 || rows[1].Target != 7 {
		t.Fatalf("row = %+v", rows[1])
	}

	rows, err = l.Recent(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 || rows[0].Shooter != 1 {
		t.Fatalf("shooter 1 rows = %+v", rows)
	}
}

func TestLogRecordConsistent(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"), 16, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	l.Publish(shot(1, 1, lagcomp.ConfirmedHit))
	if err := l.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	rows, err := l.Recent(context.Background(), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].Damage {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestCloseIsIdempotentAndStopsPublishing(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"), 1, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	l.Publish(shot(1, 1, lagcomp.ClientOnlyHit))
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after close: %v", err)
	}
}

func TestCloseDuringConcurrentPublish(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"), 8, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(shooter lagcomp.EntityID) {
			defer wg.Done()
			<-start
			for i := 0; i < 500; i++ {
				l.Publish(shot(float64(i), shooter, lagcomp.ClientOnlyHit))
				if i%50 == 0 {
					_ = l.Flush(context.Background())
				}
			}
		}(lagcomp.EntityID(g))
	}
	close(start)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("", 1, false); err == nil {
		t.Fatal("empty path accepted")
	}
}
