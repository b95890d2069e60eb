package logging

import (
	"os"
	"path/filepath"
	"testing"

	"cageside/internal/config"
)

func TestRotatingWriterKeepsOneGeneration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scoring.log")
	w, err := newRotatingWriter(path, 1)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	defer w.Close()

	chunk := make([]byte, 512*1024)
	for i := 0; i < 3; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write chunk %d: %v", i, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}
	if info.Size() > 1024*1024 {
		t.Fatalf("expected active log <= 1MB, got %d", info.Size())
	}
	prev, err := os.Stat(path + ".1")
	if err != nil {
		t.Fatalf("stat rotated log: %v", err)
	}
	if prev.Size() != 1024*1024 {
		t.Fatalf("expected rotated log of 1MB, got %d", prev.Size())
	}
}

func TestInitExposesWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	closeFn, err := Init(config.LogConfig{Level: "debug", File: path, MaxMB: 1})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer closeFn()
	if _, err := Writer().Write([]byte("{\"msg\":\"hello\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected log file content")
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if ParseLevel("").String() != "info" || ParseLevel("nope").String() != "info" {
		t.Fatal("expected info fallback")
	}
	if ParseLevel("DEBUG").String() != "debug" {
		t.Fatal("expected debug")
	}
}
