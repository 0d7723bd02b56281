package sparkplug

import "testing"

func TestSeqTracker_WrapsAt255(t *testing.T) {
	var s SeqTracker

	for i := 0; i <= seqMax; i++ {
		if got := s.Next(); got != uint64(i) {
			t.Fatalf("Next() = %d, want %d", got, i)
		}
	}
	if got := s.Next(); got != 0 {
		t.Errorf("after 255 Next() = %d, want 0", got)
	}
}

func TestSeqTracker_Reset(t *testing.T) {
	var s SeqTracker
	s.Next()
	s.Next()
	s.Reset()
	if got := s.Next(); got != 0 {
		t.Errorf("after Reset Next() = %d, want 0", got)
	}
}

func TestBdSeqTracker(t *testing.T) {
	var b BdSeqTracker

	if got := b.NextSession(); got != 0 {
		t.Errorf("first session = %d, want 0", got)
	}
	if got := b.Current(); got != 0 {
		t.Errorf("Current() = %d, want 0", got)
	}
	if got := b.NextSession(); got != 1 {
		t.Errorf("second session = %d, want 1", got)
	}

	for i := 0; i < seqMax-1; i++ {
		b.NextSession()
	}
	if got := b.Current(); got != seqMax {
		t.Fatalf("Current() = %d, want %d", got, seqMax)
	}
	if got := b.NextSession(); got != 0 {
		t.Errorf("session after %d = %d, want 0", seqMax, got)
	}
}
