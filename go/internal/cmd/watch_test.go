package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mcdev12/raidtimer/go/internal/events"
)

func TestPrintState(t *testing.T) {
	start := "2024-05-01T20:00:00.000Z"
	state := events.GroupState{
		GroupID:    "alpha",
		Status:     "running",
		StartTime:  &start,
		UpdateID:   2,
		ServerTime: "2024-05-01T20:00:30.000Z",
		Segments: []events.SegmentState{
			{IsSet: true, Name: "boss1", ShortestDurationMs: 10_000, ShortestTimeMs: 10_000},
			{Name: "boss2"},
		},
	}

	var buf bytes.Buffer
	printState(&buf, state)
	out := buf.String()

	for _, want := range []string{"[alpha]", "#2 RUNNING", "start=" + start, "boss1", "10s (best 10s)", "boss2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "stop=") {
		t.Errorf("stop time printed for a running group:\n%s", out)
	}
}
