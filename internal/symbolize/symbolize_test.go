package symbolize

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fake prints its arguments count followed by the dump in upper case.
const fakeStackwalk = `#!/bin/sh
if [ -n "$FAKE_STACKWALK_FAIL" ]; then echo "corrupt minidump" >&2; exit 1; fi
echo "args=$#"
tr 'a-z' 'A-Z' < "$1"
`

func install(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake stackwalk is a shell script")
	}
	bin := filepath.Join(t.TempDir(), "minidump_stackwalk")
	require.NoError(t, os.WriteFile(bin, []byte(fakeStackwalk), 0o755))
	return bin
}

func TestSymbolizeWithSymbols(t *testing.T) {
	s := New(install(t), t.TempDir(), 0, zerolog.Nop())
	out, err := s.Symbolize(context.Background(), []byte("frame 0"))
	require.NoError(t, err)
	assert.Equal(t, "args=2\nFRAME 0", string(out))
}

func TestSymbolizeSkipsMissingSymbols(t *testing.T) {
	s := New(install(t), filepath.Join(t.TempDir(), "absent"), 0, zerolog.Nop())
	out, err := s.Symbolize(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "args=1\nX", string(out))
}

func TestSymbolizeFailure(t *testing.T) {
	t.Setenv("FAKE_STACKWALK_FAIL", "1")
	s := New(install(t), "", 0, zerolog.Nop())
	_, err := s.Symbolize(context.Background(), []byte("x"))
	assert.ErrorContains(t, err, "corrupt minidump")

	_, err = New(filepath.Join(t.TempDir(), "nope"), "", 0, zerolog.Nop()).Symbolize(context.Background(), nil)
	assert.Error(t, err)
}
