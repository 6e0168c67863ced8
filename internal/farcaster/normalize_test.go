package farcaster

import (
	"encoding/json"
	"testing"
)

func TestNormalizeMentionShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		id   string
		text string
		fid  int64
	}{
		{
			name: "bare feed cast",
			raw:  `{"hash":"0x01","text":"hi","author":{"fid":7}}`,
			id:   "0x01", text: "hi", fid: 7,
		},
		{
			name: "webhook data envelope",
			raw:  `{"type":"cast.created","data":{"hash":"0x02","text":"yo","author":{"fid":9}}}`,
			id:   "0x02", text: "yo", fid: 9,
		},
		{
			name: "legacy cast envelope",
			raw:  `{"cast":{"hash":"0x03","text":"hey"}}`,
			id:   "0x03", text: "hey",
		},
		{
			name: "malformed",
			raw:  `{"something":"else"}`,
		},
		{
			name: "not json",
			raw:  `not even json`,
		},
	}
	for _, tc := range cases {
		m := NormalizeMention(json.RawMessage(tc.raw))
		if m.ID != tc.id || m.Text != tc.text || m.AuthorFID != tc.fid {
			t.Errorf("%s: got %+v, want id=%q text=%q fid=%d", tc.name, m, tc.id, tc.text, tc.fid)
		}
	}
}

func TestNormalizeTimestampHeuristics(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int64
	}{
		{"rfc3339 string", `{"hash":"0x01","timestamp":"2024-05-01T12:00:00Z"}`, 1714564800000},
		{"epoch seconds number", `{"hash":"0x01","timestamp":1714564800}`, 1714564800000},
		{"epoch millis number", `{"hash":"0x01","timestamp":1714564800000}`, 1714564800000},
		{"epoch seconds string", `{"hash":"0x01","timestamp":"1714564800"}`, 1714564800000},
		{"absent", `{"hash":"0x01"}`, 0},
		{"garbage string", `{"hash":"0x01","timestamp":"soon"}`, 0},
		{"negative", `{"hash":"0x01","timestamp":-5}`, 0},
	}
	for _, tc := range cases {
		m := NormalizeMention(json.RawMessage(tc.raw))
		if m.TimestampMs != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, m.TimestampMs, tc.want)
		}
		if tc.want == 0 && m.HasTimestamp() {
			t.Errorf("%s: HasTimestamp must be false", tc.name)
		}
	}
}

func TestMentionsFID(t *testing.T) {
	profiles := json.RawMessage(`{"data":{"hash":"0x01","mentioned_profiles":[{"fid":42},{"fid":7}]}}`)
	if !MentionsFID(profiles, 42) {
		t.Error("mentioned_profiles shape: fid 42 not detected")
	}
	if MentionsFID(profiles, 99) {
		t.Error("mentioned_profiles shape: fid 99 falsely detected")
	}
	bare := json.RawMessage(`{"cast":{"hash":"0x02","mentions":[42,7]}}`)
	if !MentionsFID(bare, 7) {
		t.Error("mentions shape: fid 7 not detected")
	}
	if MentionsFID(json.RawMessage(`garbage`), 42) {
		t.Error("garbage payload must not match")
	}
}
