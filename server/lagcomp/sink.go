package lagcomp

import "log"

// Sink receives one Reconciliation per verified shot. Publish runs on the
// simulation goroutine and must not block.
type Sink interface {
	Publish(rec Reconciliation)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec Reconciliation)

func (f SinkFunc) Publish(rec Reconciliation) {
	if f == nil {
		return
	}
	f(rec)
}

type nopSink struct{}

func (nopSink) Publish(Reconciliation) {}

// NopSink discards every record.
func NopSink() Sink {
	return nopSink{}
}

// MultiSink fans a record out to every non-nil sink in order.
type MultiSink []Sink

func (m MultiSink) Publish(rec Reconciliation) {
	for _, s := range m {
		if s != nil {
			s.Publish(rec)
		}
	}
}

// LogSink prints mismatched claims, and every shot when Verbose is set.
type LogSink struct {
	Logger  *log.Logger
	Verbose bool
}

func (l LogSink) Publish(rec Reconciliation) {
	if rec.Consistent() && !l.Verbose {
		return
	}
	logf := log.Printf
	if l.Logger != nil {
		logf = l.Logger.Printf
	}
	logf("[lagcomp] shot %s shooter=%d outcome=%s target=%d rewind=%.3fs claimed=%.3fs discrepancy=%.1f",
		rec.ShotID, rec.Shooter, rec.Kind, rec.Target, rec.PredictionTime, rec.ClaimedPredictionTime, rec.ClaimDiscrepancy)
}
