package debug

import (
	"bytes"
	"strings"
	"testing"
)

func TestCategoryField(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	Info("history", "evicted %d", 1)
	if got := buf.String(); !strings.Contains(got, "cat=history") || !strings.Contains(got, "evicted 1") {
		t.Errorf("log line = %q", got)
	}
}

func TestLogEvery(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	for i := 0; i < 10; i++ {
		LogEvery(5, "test-every", "tick")
	}
	if n := strings.Count(buf.String(), "tick"); n != 2 {
		t.Errorf("logged %d times, want 2", n)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()
	defer SetLevel("debug")

	if err := SetLevel("warn"); err != nil {
		t.Fatal(err)
	}
	Log("x", "hidden")
	Warn("x", "shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("log = %q", buf.String())
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("SetLevel(loud) should fail")
	}
}
