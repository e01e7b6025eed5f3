// Package config builds the hub configuration from the environment and an
// optional .env file. Every variable carries the PEERHUB_ prefix; process
// environment wins over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"peerhub/internal/blob"
	"peerhub/internal/docstore"
)

// Prefix is prepended to every variable name.
const Prefix = "PEERHUB_"

// Config is built once at startup and handed to every component.
type Config struct {
	ListenAddr      string
	ShutdownTimeout time.Duration

	Store docstore.Config
	Blob  blob.Config

	LogLevel  string
	LogFormat string

	KeepDeletedUsers       bool
	DelegateUser           string
	MemoDirs               []string
	SymbolizerBinary       string
	SymbolsDir             string
	Templates              map[string]string
	CrashRecipient         string
	PassportErrorRecipient string
	SalesRecipient         string
	AuthWindow             time.Duration
	PairingTTL             time.Duration
}

// Lookup resolves a variable the way os.LookupEnv does.
type Lookup func(key string) (string, bool)

// Load reads the given env files, ".env" when none is named, and then the
// process environment. Missing files are skipped.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		present = append(present, f)
	}
	values := map[string]string{}
	if len(present) > 0 {
		read, err := godotenv.Read(present...)
		if err != nil {
			return nil, fmt.Errorf("read env files: %w", err)
		}
		values = read
	}
	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	})
}

// FromLookup builds a Config from lookup.
func FromLookup(lookup Lookup) (*Config, error) {
	p := parser{lookup: lookup}
	cfg := &Config{
		ListenAddr:      p.str("LISTEN_ADDR", ":8080"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Store: docstore.Config{
			Driver:     docstore.Driver(p.str("STORAGE_DRIVER", string(docstore.DriverMemory))),
			SQLitePath: p.str("SQLITE_PATH", "peerhub.db"),
			DSN:        p.str("POSTGRES_DSN", ""),
			Options: docstore.Options{
				MaxDocumentBytes: p.integer("MAX_DOCUMENT_BYTES", 0),
				UpdateRetries:    p.integer("UPDATE_RETRIES", docstore.DefaultUpdateRetries),
			},
		},
		Blob: blob.Config{
			Driver: blob.Driver(p.str("BLOB_DRIVER", string(blob.DriverFilesystem))),
			Root:   p.str("BLOB_FS_ROOT", ""),
			S3: blob.S3Config{
				Region:          p.str("BLOB_S3_REGION", ""),
				Bucket:          p.str("BLOB_S3_BUCKET", ""),
				Endpoint:        p.str("BLOB_S3_ENDPOINT", ""),
				AccessKeyID:     p.str("BLOB_S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: p.str("BLOB_S3_SECRET_ACCESS_KEY", ""),
				SessionToken:    p.str("BLOB_S3_SESSION_TOKEN", ""),
				PathStyle:       p.boolean("BLOB_S3_PATH_STYLE", false),
			},
		},
		LogLevel:               p.str("LOG_LEVEL", "info"),
		LogFormat:              p.str("LOG_FORMAT", "json"),
		KeepDeletedUsers:       p.boolean("KEEP_DELETED_USERS", false),
		DelegateUser:           p.str("DELEGATE_USER", "hub"),
		MemoDirs:               p.list("MEMO_BINARIES"),
		SymbolizerBinary:       p.str("SYMBOLIZER", ""),
		SymbolsDir:             p.str("SYMBOLS_DIR", ""),
		Templates:              p.templates("EMAIL_TEMPLATES"),
		CrashRecipient:         p.str("CRASH_RECIPIENT", "crash@localhost"),
		PassportErrorRecipient: p.str("PASSPORT_ERROR_RECIPIENT", "crash+passport_generation@localhost"),
		SalesRecipient:         p.str("SALES_RECIPIENT", "sales@localhost"),
		AuthWindow:             p.duration("AUTH_WINDOW", 300*time.Second),
		PairingTTL:             p.duration("PAIRING_TTL", 5*time.Minute),
	}
	switch cfg.Store.Driver {
	case docstore.DriverMemory, docstore.DriverSQLite, docstore.DriverPostgres:
	default:
		p.fail("STORAGE_DRIVER", fmt.Errorf("unknown driver %q", cfg.Store.Driver))
	}
	switch cfg.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverS3, blob.DriverMemory:
	default:
		p.fail("BLOB_DRIVER", fmt.Errorf("unknown driver %q", cfg.Blob.Driver))
	}
	if cfg.Store.Driver == docstore.DriverPostgres && cfg.Store.DSN == "" {
		p.fail("POSTGRES_DSN", errors.New("required by the postgres driver"))
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

type parser struct {
	lookup Lookup
	errs   []error
}

func (p *parser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(Prefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) integer(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

// duration accepts Go durations and bare seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

// list splits a path list on the OS separator.
func (p *parser) list(key string) []string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	return filepath.SplitList(v)
}

// templates parses "Template/Name=provider-id;Other=id".
func (p *parser) templates(key string) map[string]string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(v, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, id, found := strings.Cut(pair, "=")
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if !found || name == "" || id == "" {
			p.fail(key, fmt.Errorf("malformed entry %q", pair))
			continue
		}
		out[name] = id
	}
	return out
}
