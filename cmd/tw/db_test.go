package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "taskwire.yaml")
	cfg := "gateway:\n  base_url: http://localhost:9999\ndatabase:\n  path: " +
		filepath.Join(dir, "taskwire.db") + "\n"
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDBInit(t *testing.T) {
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir)

	cmd, buf := newOutCmd()
	if err := runDBInit(cmd, configPath); err != nil {
		t.Fatalf("runDBInit: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Migrated") {
		t.Errorf("missing migration notice in output: %s", out)
	}
	if !strings.Contains(out, "initialized successfully") {
		t.Errorf("missing success notice in output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "taskwire.db")); err != nil {
		t.Errorf("sqlite file not created: %v", err)
	}
}

func TestDBInit_MissingConfig(t *testing.T) {
	cmd, _ := newOutCmd()
	if err := runDBInit(cmd, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestDBReset_Confirmed(t *testing.T) {
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir)

	cmd, _ := newOutCmd()
	if err := runDBInit(cmd, configPath); err != nil {
		t.Fatalf("runDBInit: %v", err)
	}

	cmd, buf := newOutCmd()
	cmd.SetIn(strings.NewReader("yes\n"))
	if err := runDBReset(cmd, configPath, false); err != nil {
		t.Fatalf("runDBReset: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Removed") {
		t.Errorf("missing removal notice in output: %s", out)
	}
	if !strings.Contains(out, "initialized successfully") {
		t.Errorf("reset should re-initialize, got: %s", out)
	}
}

func TestDBReset_Aborted(t *testing.T) {
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir)

	cmd, _ := newOutCmd()
	if err := runDBInit(cmd, configPath); err != nil {
		t.Fatalf("runDBInit: %v", err)
	}

	cmd, buf := newOutCmd()
	cmd.SetIn(strings.NewReader("no\n"))
	if err := runDBReset(cmd, configPath, false); err != nil {
		t.Fatalf("runDBReset: %v", err)
	}

	if !strings.Contains(buf.String(), "Aborted.") {
		t.Errorf("expected abort notice, got: %s", buf.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "taskwire.db")); err != nil {
		t.Errorf("aborted reset must keep the store: %v", err)
	}
}

func TestDBReset_RefusesServerStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskwire.yaml")
	cfg := "gateway:\n  base_url: http://localhost:9999\ndatabase:\n  host: 127.0.0.1\n  name: taskwire\n"
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd, _ := newOutCmd()
	err := runDBReset(cmd, path, true)
	if err == nil || !strings.Contains(err.Error(), "only supports SQLite") {
		t.Fatalf("expected SQLite-only error, got: %v", err)
	}
}
