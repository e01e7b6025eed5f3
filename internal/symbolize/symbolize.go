// Package symbolize turns client minidumps into readable stack traces with
// minidump_stackwalk.
package symbolize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBinary is looked up in PATH when no binary is configured.
const DefaultBinary = "minidump_stackwalk"

// ErrEmptyOutput reports a run that printed nothing.
var ErrEmptyOutput = errors.New("symbolizer produced no output")

// Stackwalk runs minidump_stackwalk on dumps. The symbols directory is
// passed only when it exists, the tool failing on a missing one.
type Stackwalk struct {
	binary  string
	symbols string
	timeout time.Duration
	logger  zerolog.Logger
}

// New returns a symbolizer. Empty binary selects DefaultBinary.
func New(binary, symbols string, timeout time.Duration, logger zerolog.Logger) *Stackwalk {
	if binary == "" {
		binary = DefaultBinary
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Stackwalk{binary: binary, symbols: symbols, timeout: timeout, logger: logger.With().Str("component", "symbolize").Logger()}
}

// Symbolize returns the stack trace of dump.
func (s *Stackwalk) Symbolize(ctx context.Context, dump []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "peerhub-dump-")
	if err != nil {
		return nil, fmt.Errorf("dump directory: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "client.dump")
	if err := os.WriteFile(path, dump, 0o600); err != nil {
		return nil, fmt.Errorf("write dump: %w", err)
	}

	args := []string{path}
	if s.symbols != "" {
		if info, err := os.Stat(s.symbols); err == nil && info.IsDir() {
			args = append(args, s.symbols)
		} else {
			s.logger.Warn().Str("symbols", s.symbols).Msg("symbols directory unavailable")
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", s.binary, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, ErrEmptyOutput
	}
	s.logger.Debug().Int("bytes", stdout.Len()).Msg("dump symbolized")
	return stdout.Bytes(), nil
}
