package version

import (
	"strings"
	"testing"
)

func TestGetters(t *testing.T) {
	if GetVersion() == "" {
		t.Error("version must not be empty")
	}
	if GetCommit() == "" {
		t.Error("commit must not be empty")
	}
	if GetDate() == "" {
		t.Error("build date must not be empty")
	}
}

func TestString(t *testing.T) {
	s := String()

	for _, part := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Errorf("String() must contain %q, got %q", part, s)
		}
	}
	if !strings.Contains(s, GetVersion()) {
		t.Errorf("String() must contain the version, got %q", s)
	}
}
