package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mcdev12/raidtimer/go/internal/timer"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 20, 0, 1, 250_000_000, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T20:00:01.250Z", want},
		{"2024-05-01T22:00:01.250+02:00", want},
		{"2024-05-01T20:00:01.250", want},
		{"2024-05-01T20:00:01.250000", want},
		{"2024-05-01 20:00:01.25", want},
		{"2024-05-01T20:00:01", want.Truncate(time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if err != nil {
				t.Fatalf("ParseTime: %v", err)
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Fatalf("ParseTime = %v, want %v in UTC", got, tt.want)
			}
		})
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "2024-13-01T00:00:00"} {
		if _, err := ParseTime(in); err == nil {
			t.Errorf("ParseTime(%q) succeeded", in)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if FormatTime(time.Time{}) != nil {
		t.Fatal("zero time should format as nil")
	}
	local := time.FixedZone("CEST", 2*60*60)
	got := FormatTime(time.Date(2024, 5, 1, 22, 0, 1, 250_600_000, local))
	if got == nil || *got != "2024-05-01T20:00:01.250Z" {
		t.Fatalf("FormatTime = %v", got)
	}
}

func TestNewGroupState(t *testing.T) {
	start := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	g := timer.NewGroup("alpha", nil)
	g.Start(start)
	if _, err := g.RecordSegment(0, start.Add(10*time.Second), "boss1"); err != nil {
		t.Fatal(err)
	}
	snap := g.Stop(start.Add(25 * time.Second))

	state := NewGroupState(snap, start.Add(time.Minute))
	if state.GroupID != "alpha" || state.Status != "stopped" || state.UpdateID != 3 {
		t.Fatalf("state = %+v", state)
	}
	if state.StartTime == nil || *state.StartTime != "2024-05-01T20:00:00.000Z" {
		t.Fatalf("start_time = %v", state.StartTime)
	}
	if state.ServerTime != "2024-05-01T20:01:00.000Z" {
		t.Fatalf("server_time = %q", state.ServerTime)
	}
	if len(state.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(state.Segments))
	}
	last := state.Segments[1]
	if !last.IsSet || last.ShortestDurationMs != 15_000 || last.ShortestTimeMs != 25_000 {
		t.Fatalf("final segment = %+v", last)
	}

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"status", "start_time", "stop_time", "update_id", "update_time", "segments"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing %q in %s", key, data)
		}
	}
}

func TestNewGroupStateEmptySegmentsEncodeAsArray(t *testing.T) {
	state := NewGroupState(timer.NewGroup("empty", nil).Snapshot(), time.Now())
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["segments"]) != "[]" {
		t.Fatalf("segments = %s, want []", raw["segments"])
	}
	if string(raw["start_time"]) != "null" {
		t.Fatalf("start_time = %s, want null", raw["start_time"])
	}
}
