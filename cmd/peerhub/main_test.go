package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerhub/internal/config"
)

func TestCLIVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, cli([]string{"-version"}, &stdout, &stderr))
	assert.Equal(t, version+"\n", stdout.String())
}

func TestCLIRejectsBadInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, cli([]string{"-nope"}, &stdout, &stderr))

	missing := filepath.Join(t.TempDir(), "missing.env")
	t.Setenv("PEERHUB_STORAGE_DRIVER", "mongo")
	stderr.Reset()
	assert.Equal(t, 2, cli([]string{"-env", missing}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "PEERHUB_STORAGE_DRIVER")

	t.Setenv("PEERHUB_STORAGE_DRIVER", "memory")
	t.Setenv("PEERHUB_LOG_LEVEL", "loud")
	stderr.Reset()
	assert.Equal(t, 2, cli([]string{"-env", missing}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "logging")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg, err := config.FromLookup(func(key string) (string, bool) {
		v, ok := map[string]string{
			"PEERHUB_LISTEN_ADDR":   "127.0.0.1:0",
			"PEERHUB_BLOB_DRIVER":   "memory",
			"PEERHUB_MEMO_BINARIES": t.TempDir(),
		}[key]
		return v, ok
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}
