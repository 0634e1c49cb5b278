package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/raidtimer/go/internal/timer"
)

// Payload types shared by the gateway, the change publisher and the client.

// TimeLayout is the layout used for every timestamp we emit.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Layouts accepted from clients, most specific first. Zone-less values are
// read as UTC.
var inputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTime parses an ISO-8601 timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FormatTime renders t in UTC with millisecond precision. The zero time is
// rendered as nil so clients can tell "never set" apart from the epoch.
func FormatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(TimeLayout)
	return &s
}

// GroupState is the JSON form of a group snapshot.
type GroupState struct {
	GroupID    string         `json:"group_id"`
	Status     string         `json:"status"`
	StartTime  *string        `json:"start_time"`
	StopTime   *string        `json:"stop_time"`
	UpdateTime *string        `json:"update_time"`
	UpdateID   uint64         `json:"update_id"`
	ServerTime string         `json:"server_time"`
	Segments   []SegmentState `json:"segments"`
}

// SegmentState is the JSON form of one segment.
type SegmentState struct {
	IsSet              bool    `json:"is_set"`
	Start              *string `json:"start"`
	End                *string `json:"end"`
	ShortestDurationMs int64   `json:"shortest_duration_ms"`
	ShortestTimeMs     int64   `json:"shortest_time_ms"`
	Name               string  `json:"name"`
}

// NewGroupState converts a snapshot into its wire form. serverNow lets clients
// estimate their clock offset.
func NewGroupState(snap timer.Snapshot, serverNow time.Time) GroupState {
	segments := make([]SegmentState, len(snap.Segments))
	for i, s := range snap.Segments {
		segments[i] = SegmentState{
			IsSet:              s.IsSet,
			Start:              FormatTime(s.Start),
			End:                FormatTime(s.End),
			ShortestDurationMs: s.ShortestDuration.Milliseconds(),
			ShortestTimeMs:     s.ShortestTime.Milliseconds(),
			Name:               s.Name,
		}
	}
	return GroupState{
		GroupID:    snap.GroupID,
		Status:     snap.Status.String(),
		StartTime:  FormatTime(snap.StartTime),
		StopTime:   FormatTime(snap.StopTime),
		UpdateTime: FormatTime(snap.UpdatedAt),
		UpdateID:   snap.Version,
		ServerTime: serverNow.UTC().Format(TimeLayout),
		Segments:   segments,
	}
}

// MutationResult acknowledges a committed mutation.
type MutationResult struct {
	Status   string `json:"status"`
	UpdateID uint64 `json:"update_id"`
}

// ServerInfo is returned by the version probe.
type ServerInfo struct {
	App     string `json:"app"`
	Version int    `json:"version"`
}

// GroupChanged is the envelope published for every committed mutation.
type GroupChanged struct {
	ID        string     `json:"id"`
	GroupID   string     `json:"group_id"`
	UpdateID  uint64     `json:"update_id"`
	Timestamp time.Time  `json:"timestamp"`
	State     GroupState `json:"state"`
}
