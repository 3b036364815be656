package xdgportal

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestParseStartResults(t *testing.T) {
	props := map[string]dbus.Variant{
		"size":        dbus.MakeVariant([]any{int32(1080), int32(1920)}),
		"position":    dbus.MakeVariant([]any{int32(0), int32(0)}),
		"source_type": dbus.MakeVariant(SourceTypeMonitor),
		"id":          dbus.MakeVariant("0"),
	}
	results := map[string]dbus.Variant{
		"streams":       dbus.MakeVariant([]any{[]any{uint32(42), props}}),
		"restore_token": dbus.MakeVariant("restore-me"),
	}

	got, err := parseStartResults(results)
	if err != nil {
		t.Fatalf("parseStartResults: %v", err)
	}
	if got.RestoreToken != "restore-me" {
		t.Fatalf("restore token = %q", got.RestoreToken)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	if s.NodeID != 42 || s.Size != [2]int32{1080, 1920} || s.SourceType != SourceTypeMonitor {
		t.Fatalf("unexpected stream %+v", s)
	}
}

func TestParseStartResultsWithoutStreams(t *testing.T) {
	if _, err := parseStartResults(map[string]dbus.Variant{}); !errors.Is(err, ErrNoStreams) {
		t.Fatalf("expected ErrNoStreams, got %v", err)
	}

	empty := map[string]dbus.Variant{"streams": dbus.MakeVariant([]any{})}
	if _, err := parseStartResults(empty); !errors.Is(err, ErrNoStreams) {
		t.Fatalf("expected ErrNoStreams for empty list, got %v", err)
	}
}

func TestParseInt32Pair(t *testing.T) {
	if _, ok := parseInt32Pair([]any{int32(1)}); ok {
		t.Fatalf("short pair must fail")
	}
	if _, ok := parseInt32Pair([]any{int32(1), "x"}); ok {
		t.Fatalf("mixed pair must fail")
	}
	if p, ok := parseInt32Pair([]any{int32(3), int32(4)}); !ok || p != [2]int32{3, 4} {
		t.Fatalf("pair = %v, %v", p, ok)
	}
}

func TestParseStartResultsSkipsMalformedStreams(t *testing.T) {
	results := map[string]dbus.Variant{
		"streams": dbus.MakeVariant([]any{
			[]any{"not-a-node", map[string]dbus.Variant{}},
			[]any{uint32(7)},
			[]any{uint32(9), map[string]dbus.Variant{}},
		}),
	}
	got, err := parseStartResults(results)
	if err != nil {
		t.Fatalf("parseStartResults: %v", err)
	}
	if len(got.Streams) != 1 || got.Streams[0].NodeID != 9 {
		t.Fatalf("streams = %+v, want only node 9", got.Streams)
	}
}

func TestStartResultScreenPrefersMonitor(t *testing.T) {
	r := &StartResult{Streams: []Stream{
		{NodeID: 1, SourceType: SourceTypeWindow},
		{NodeID: 2, SourceType: SourceTypeMonitor},
	}}
	if st, ok := r.Screen(); !ok || st.NodeID != 2 {
		t.Fatalf("Screen = %+v, %v; want node 2", st, ok)
	}

	r = &StartResult{Streams: []Stream{{NodeID: 5}}}
	if st, ok := r.Screen(); !ok || st.NodeID != 5 {
		t.Fatalf("Screen = %+v, %v; want fallback node 5", st, ok)
	}

	var empty *StartResult
	if _, ok := empty.Screen(); ok {
		t.Fatalf("nil result must not pick a stream")
	}
}
