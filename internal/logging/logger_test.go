package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"off":     LevelOff,
		"  INFO ": LevelInfo,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitializeWritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Config{Dir: dir, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(CloseAll)

	Session("session line %d", 1)
	Alerts("alerts line")
	CloseAll()

	data, err := os.ReadFile(filepath.Join(dir, "session.log"))
	if err != nil {
		t.Fatalf("failed to read session log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "[INFO] [session] session line 1") {
		t.Errorf("unexpected session log line: %s", line)
	}

	if _, err := os.Stat(filepath.Join(dir, "alerts.log")); err != nil {
		t.Errorf("alerts log not created: %v", err)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(Config{
		Dir:        dir,
		Level:      "warn",
		Categories: map[string]string{"router": "debug"},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(CloseAll)

	Store("suppressed at warn level")
	StoreError("kept")
	RouterDebug("kept by category override")
	CloseAll()

	storeData, _ := os.ReadFile(filepath.Join(dir, "store.log"))
	if strings.Contains(string(storeData), "suppressed") {
		t.Errorf("info line not filtered at warn level: %s", storeData)
	}
	if !strings.Contains(string(storeData), "kept") {
		t.Errorf("error line missing: %s", storeData)
	}

	routerData, _ := os.ReadFile(filepath.Join(dir, "router.log"))
	if !strings.Contains(string(routerData), "kept by category override") {
		t.Errorf("category override ignored: %s", routerData)
	}
}
