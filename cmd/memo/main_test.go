package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the run command shells out through /bin/sh")
	}

	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	tmpDir := t.TempDir()
	t.Setenv("MEMO_CACHE_DIR", t.TempDir())
	t.Setenv("MEMO_STATE_DIR", t.TempDir())

	config := `version: "1"
steps:
  hello:
    run: echo hello
`
	err := os.WriteFile(filepath.Join(tmpDir, "memo.yaml"), []byte(config), 0o600)
	if err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Chdir(tmpDir)

	os.Args = []string{"memo", "run"}
	assert.Equal(t, 0, run())
}

func TestRun_MissingConfig(t *testing.T) {
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	t.Setenv("MEMO_CACHE_DIR", t.TempDir())
	t.Setenv("MEMO_STATE_DIR", t.TempDir())
	t.Chdir(t.TempDir())

	os.Args = []string{"memo", "run"}
	assert.Equal(t, 1, run())
}
