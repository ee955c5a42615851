package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

// TestSetupLoggingDisabled tests logs are discarded without -debug
func TestSetupLoggingDisabled(t *testing.T) {
	if f := setupLogging(false); f != nil {
		t.Error("Expected nil log file when debug=false")
		f.Close()
	}
	if out := log.Writer(); out != io.Discard {
		t.Errorf("Expected io.Discard, got %v", out)
	}
}

// TestSetupLoggingEnabled tests the log file is created and written
func TestSetupLoggingEnabled(t *testing.T) {
	defer os.RemoveAll(logDir)

	f := setupLogging(true)
	if f == nil {
		t.Fatal("Expected non-nil log file when debug=true")
	}
	defer f.Close()
	defer log.SetOutput(io.Discard)

	log.Println("test message")

	info, err := os.Stat(filepath.Join(logDir, logFileName))
	if err != nil {
		t.Fatalf("Failed to stat log file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Expected log file to contain content")
	}
	if out := log.Writer(); out == os.Stdout || out == os.Stderr {
		t.Error("Expected log output away from stdout and stderr")
	}
}

// TestSetupLoggingRotation tests an oversized log is moved aside
func TestSetupLoggingRotation(t *testing.T) {
	defer os.RemoveAll(logDir)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		t.Fatalf("Failed to create logs directory: %v", err)
	}
	logPath := filepath.Join(logDir, logFileName)
	if err := os.WriteFile(logPath, make([]byte, maxLogSize+1), 0644); err != nil {
		t.Fatalf("Failed to write large log: %v", err)
	}

	f := setupLogging(true)
	if f == nil {
		t.Fatal("Expected non-nil log file")
	}
	defer f.Close()
	defer log.SetOutput(io.Discard)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("Failed to read logs directory: %v", err)
	}
	rotated := false
	for _, e := range entries {
		if e.Name() != logFileName && filepath.Ext(e.Name()) == ".log" {
			rotated = true
		}
	}
	if !rotated {
		t.Error("Expected a rotated log file")
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("Failed to stat new log: %v", err)
	}
	if info.Size() > maxLogSize {
		t.Errorf("Expected fresh log under %d bytes, got %d", maxLogSize, info.Size())
	}
}
