package timer

import (
	"fmt"
	"time"
)

// Segment is one lap of a run, bounded by the end of the previous segment and
// its own end.
type Segment struct {
	IsSet bool
	Name  string
	Start time.Time
	End   time.Time

	// ShortestDuration is the smallest End-Start ever observed for this slot.
	ShortestDuration time.Duration
	// ShortestTime is the smallest End-runStart ever observed for this slot.
	ShortestTime time.Duration
}

// Duration returns the current length of the segment.
func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Ledger keeps the lap records of a group. It has no locking of its own; the
// owning Group serialises access.
type Ledger struct {
	segments []Segment
}

// Len returns the number of segment slots.
func (l *Ledger) Len() int {
	return len(l.segments)
}

// Segments returns a copy of the segment slots.
func (l *Ledger) Segments() []Segment {
	if len(l.segments) == 0 {
		return []Segment{}
	}
	out := make([]Segment, len(l.segments))
	copy(out, l.segments)
	return out
}

// Record stores a lap crossing for slot index observed at the given time.
//
// index may address an existing slot or the slot directly after the last one;
// anything else is rejected so the sequence never has gaps. End only moves
// forward, while the shortest-time and shortest-duration records only move
// backward.
func (l *Ledger) Record(index int, observed time.Time, name string, runStart time.Time) error {
	if index < 0 || index > len(l.segments) {
		return fmt.Errorf("%w: index %d with %d segments", ErrSegmentIndexOutOfRange, index, len(l.segments))
	}

	isNew := index == len(l.segments)
	if isNew {
		l.segments = append(l.segments, Segment{})
	}

	seg := &l.segments[index]
	seg.IsSet = true
	seg.Name = name
	if isNew || observed.After(seg.End) {
		seg.End = observed
	}

	// The following lap starts where this one ends.
	if index+1 < len(l.segments) && l.segments[index+1].IsSet {
		next := &l.segments[index+1]
		next.Start = seg.End
		if d := next.Duration(); d < next.ShortestDuration {
			next.ShortestDuration = d
		}
	}

	if index > 0 {
		seg.Start = l.segments[index-1].End
	} else {
		seg.Start = runStart
	}

	duration := seg.Duration()
	fromRunStart := seg.End.Sub(runStart)
	if isNew || fromRunStart < seg.ShortestTime {
		seg.ShortestTime = fromRunStart
	}
	if isNew || duration < seg.ShortestDuration {
		seg.ShortestDuration = duration
	}
	return nil
}

// FirstUnset returns the index of the first slot without a crossing in the
// current run, or Len when every slot is set.
func (l *Ledger) FirstUnset() int {
	for i := range l.segments {
		if !l.segments[i].IsSet {
			return i
		}
	}
	return len(l.segments)
}

// Invalidate marks every slot as not yet crossed while keeping best records.
func (l *Ledger) Invalidate() {
	for i := range l.segments {
		l.segments[i].IsSet = false
	}
}

// Clear drops every slot and its history.
func (l *Ledger) Clear() {
	l.segments = nil
}
