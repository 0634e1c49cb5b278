package timer

import "errors"

// ErrSegmentIndexOutOfRange is returned when a segment index would leave a gap
// in the segment sequence.
var ErrSegmentIndexOutOfRange = errors.New("segment index out of range")
