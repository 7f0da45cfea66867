package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConsoleOnly(t *testing.T) {
	logger := New(Options{})
	defer logger.Sync()
	logger.Sugar().Info("console-only logger")
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voiceclient.log")

	logger := New(Options{Filename: path, Debug: true})
	logger.Sugar().Infow("hello", "key", "value")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain at least one record")
	}
}
