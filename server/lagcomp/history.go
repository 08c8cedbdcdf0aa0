package lagcomp

import "slices"

// History is the rolling pose record of one entity, oldest first.
//
// It is not safe for concurrent use; the simulation goroutine owns it.
type History struct {
	samples []Sample
}

// NewHistory returns an empty history with room for capHint samples.
func NewHistory(capHint int) *History {
	return &History{samples: make([]Sample, 0, capHint)}
}

// Append adds s at the tail. Callers append once per simulation step, even
// when the entity did not move; equal ServerTime values are kept because
// they mark ticks without motion.
//
// A sample older than the current tail is stored with the tail's time so
// the buffer stays ordered.
func (h *History) Append(s Sample) {
	if n := len(h.samples); n > 0 && s.ServerTime < h.samples[n-1].ServerTime {
		s.ServerTime = h.samples[n-1].ServerTime
	}
	h.samples = append(h.samples, s)
}

// Trim drops samples from the head while the second sample is already older
// than now-maxAge. One sample older than the boundary is always kept so a
// lookup at the boundary has a left neighbor, and the last sample is never
// removed. It returns the number of samples dropped.
func (h *History) Trim(now, maxAge float64) int {
	boundary := now - maxAge
	n := 0
	for len(h.samples)-n > 1 && h.samples[n+1].ServerTime < boundary {
		n++
	}
	if n > 0 {
		h.samples = slices.Delete(h.samples, 0, n)
	}
	return n
}

// Samples returns a copy of the stored samples, newest last.
func (h *History) Samples() []Sample {
	if h == nil {
		return nil
	}
	return slices.Clone(h.samples)
}

// Len returns the number of stored samples.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.samples)
}

// Latest returns the newest sample.
func (h *History) Latest() (Sample, bool) {
	if h.Len() == 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Oldest returns the oldest sample.
func (h *History) Oldest() (Sample, bool) {
	if h.Len() == 0 {
		return Sample{}, false
	}
	return h.samples[0], true
}
