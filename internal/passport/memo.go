// Package passport issues network passports on behalf of the hub through
// the memo command line tool.
package passport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"peerhub/pkg/domain"
)

// ErrUnavailable reports that no memo binary was found at startup.
var ErrUnavailable = errors.New("memo binary unavailable")

// DefaultTimeout bounds every memo invocation.
const DefaultTimeout = 5 * time.Second

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "memo.exe"
	}
	return "memo"
}

// Discover returns the first memo binary answering "--version" among the
// directories. Empty entries are skipped.
func Discover(ctx context.Context, dirs []string, logger zerolog.Logger) (string, error) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, binaryName())
		cctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		err := exec.CommandContext(cctx, candidate, "--version").Run()
		cancel()
		if err != nil {
			logger.Debug().Err(err).Str("binary", candidate).Msg("memo probe failed")
			continue
		}
		logger.Info().Str("binary", candidate).Msg("memo found")
		return candidate, nil
	}
	return "", ErrUnavailable
}

// SearchPath lists the directories probed for memo: extra first, then PATH,
// then the conventional install locations.
func SearchPath(extra ...string) []string {
	dirs := append([]string{}, extra...)
	dirs = append(dirs, filepath.SplitList(os.Getenv("PATH"))...)
	return append(dirs, "bin", "/opt/memo/bin")
}

// Issuer runs memo in a scratch data home seeded with the users and the
// network involved.
type Issuer struct {
	binary  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewIssuer returns an issuer running binary. An empty binary yields an
// issuer that always fails with ErrUnavailable.
func NewIssuer(binary string, timeout time.Duration, logger zerolog.Logger) *Issuer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Issuer{binary: binary, timeout: timeout, logger: logger.With().Str("component", "passport").Logger()}
}

// Issue signs a passport for user on network as delegate. The delegate
// record must carry its private key.
func (i *Issuer) Issue(ctx context.Context, delegate, user domain.User, network domain.Network) (domain.Passport, error) {
	if i.binary == "" {
		return domain.Passport{}, ErrUnavailable
	}
	home, err := os.MkdirTemp("", "peerhub-memo-")
	if err != nil {
		return domain.Passport{}, fmt.Errorf("memo data home: %w", err)
	}
	defer os.RemoveAll(home)
	env := append(os.Environ(),
		"MEMO_DATA_HOME="+home,
		"MEMO_USER="+delegate.Name,
		"MEMO_CRASH_REPORT=0",
	)

	public := domain.User{Name: user.Name, PublicKey: user.PublicKey, Description: user.Description}
	if err := i.importRecord(ctx, env, "user", user.Name, public); err != nil {
		return domain.Passport{}, err
	}
	if err := i.importRecord(ctx, env, "user", delegate.Name, delegate); err != nil {
		return domain.Passport{}, err
	}
	if err := i.importRecord(ctx, env, "network", network.Name.String(), network); err != nil {
		return domain.Passport{}, err
	}
	out, err := i.run(ctx, env, nil,
		"passport", "create",
		"--user", user.Name,
		"--network", network.Name.String(),
		"--as", delegate.Name,
		"--output", "-",
		"--script",
	)
	if err != nil {
		return domain.Passport{}, fmt.Errorf("create passport for %s on %s: %w", user.Name, network.Name, err)
	}
	var p domain.Passport
	if err := json.Unmarshal(out, &p); err != nil {
		return domain.Passport{}, fmt.Errorf("decode passport for %s: %w", user.Name, err)
	}
	i.logger.Info().Str("user", user.Name).Str("network", network.Name.String()).Msg("passport issued")
	return p, nil
}

func (i *Issuer) importRecord(ctx context.Context, env []string, kind, name string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", kind, name, err)
	}
	if _, err := i.run(ctx, env, append(data, '\n'), kind, "import", "-s"); err != nil {
		return fmt.Errorf("impossible to import %s %q: %w", kind, name, err)
	}
	return nil
}

func (i *Issuer) run(ctx context.Context, env []string, stdin []byte, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, i.binary, args...)
	cmd.Env = env
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
