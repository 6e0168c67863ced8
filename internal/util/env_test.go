package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		def      bool
		expected bool
	}{
		{"", true, true},
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"off", true, false},
		{"0", true, false},
		{"garbage", true, true},
	}
	for _, tt := range tests {
		t.Setenv("CASTPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("CASTPIPE_TEST_BOOL", tt.def); got != tt.expected {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", 90 * time.Second},
		{"5000", 5 * time.Second},
		{"2m", 2 * time.Minute},
		{"bogus", 90 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("CASTPIPE_TEST_DUR", tt.value)
		if got := ParseDurationEnv("CASTPIPE_TEST_DUR", 90*time.Second); got != tt.expected {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.expected)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("CASTPIPE_TEST_INT", "42")
	if got := ParseIntEnv("CASTPIPE_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("CASTPIPE_TEST_INT", "nope")
	if got := ParseIntEnv("CASTPIPE_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
}
