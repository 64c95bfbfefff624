package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	id := GenerateRandomID("rule_", 32)
	if !strings.HasPrefix(id, "rule_") {
		t.Errorf("expected rule_ prefix, got %q", id)
	}
	if len(id) != len("rule_")+32 {
		t.Errorf("expected length %d, got %d", len("rule_")+32, len(id))
	}
	for _, c := range strings.TrimPrefix(id, "rule_") {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected character %q in ID %q", c, id)
		}
	}

	if GenerateRandomHex(0) != "" {
		t.Error("expected empty string for zero length")
	}
	if GenerateRandomHex(-5) != "" {
		t.Error("expected empty string for negative length")
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"OFF", true, false},
		{"", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("STAYPILOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("STAYPILOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("STAYPILOT_TEST_INT", "42")
	if got := ParseIntEnv("STAYPILOT_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("STAYPILOT_TEST_INT", "not-a-number")
	if got := ParseIntEnv("STAYPILOT_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
	t.Setenv("STAYPILOT_TEST_INT", "")
	if got := ParseIntEnv("STAYPILOT_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7 for empty value, got %d", got)
	}
}
