package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func reset(t *testing.T) {
	t.Cleanup(func() {
		Close()
		Logger = nil
	})
}

func TestHelpersAreNoOpsBeforeInit(t *testing.T) {
	Logger = nil
	Info("ignored")
	Debug("ignored")
	Warn("ignored")
	Error("ignored")
	if WithPrefix("api") == nil {
		t.Fatal("WithPrefix before Init returned nil")
	}
}

func TestInitWriterLevels(t *testing.T) {
	reset(t)
	var buf bytes.Buffer

	InitWriter(&buf, false)
	Debug("hidden")
	Info("shown", "page", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "page=2") {
		t.Errorf("info line missing: %q", out)
	}

	buf.Reset()
	InitWriter(&buf, true)
	Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("verbose did not enable debug: %q", buf.String())
	}
}

func TestInitCreatesDatedFile(t *testing.T) {
	reset(t)
	dir := t.TempDir()

	if err := Init(dir, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	WithPrefix("feed").Warn("slow page", "key", "boxes")

	want := filepath.Join(dir, "logs", "sharkbox-"+time.Now().Format("2006-01-02")+".log")
	if Path() != want {
		t.Errorf("Path() = %q, want %q", Path(), want)
	}
	Close()

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"sharkbox started", "feed", "slow page", "sharkbox shutting down"} {
		if !strings.Contains(string(data), s) {
			t.Errorf("log file missing %q:\n%s", s, data)
		}
	}
}
