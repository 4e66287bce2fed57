package version

import (
	"strings"
	"testing"
)

func TestString_Defaults(t *testing.T) {
	t.Parallel()
	got := String()
	if !strings.HasPrefix(got, "raggpt dev") {
		t.Errorf("String() = %q, want prefix %q", got, "raggpt dev")
	}
	if !strings.Contains(got, "commit: unknown") {
		t.Errorf("String() = %q, missing commit", got)
	}
}
