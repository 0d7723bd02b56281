package sparkplug

import "sync"

// seqMax is the largest message sequence number before wrap-around.
const seqMax = 255

// SeqTracker issues the per-message sequence number carried by every
// payload after NBIRTH. Numbers run 0-255 and wrap back to 0.
type SeqTracker struct {
	mu   sync.Mutex
	next uint64
}

// Next returns the current sequence number and advances the counter.
func (s *SeqTracker) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.next == seqMax {
		s.next = 0
	} else {
		s.next++
	}
	return n
}

// Reset rewinds the counter so the next payload carries seq 0.
// Called at the start of every birth sequence.
func (s *SeqTracker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}

// BdSeqTracker issues the birth/death sequence number that pairs an
// NBIRTH with the NDEATH registered as the session's last will. It
// increments once per MQTT session and wraps at 255.
type BdSeqTracker struct {
	mu      sync.Mutex
	current uint64
	started bool
}

// NextSession advances to a new session and returns its bdSeq.
// The first session of a process lifetime is 0.
func (b *BdSeqTracker) NextSession() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		b.started = true
		return b.current
	}
	if b.current == seqMax {
		b.current = 0
	} else {
		b.current++
	}
	return b.current
}

// Current returns the bdSeq of the active session.
func (b *BdSeqTracker) Current() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
