// Package core implements the hub operations on users, networks, volumes,
// drives, key-value stores and pairing records.
package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"peerhub/internal/blob"
	"peerhub/internal/docstore"
	"peerhub/internal/emailer"
	"peerhub/pkg/domain"
)

// PassportIssuer signs a passport for user on network acting as delegate.
type PassportIssuer interface {
	Issue(ctx context.Context, delegate domain.User, user domain.User, network domain.Network) (domain.Passport, error)
}

// Symbolizer turns a raw crash dump into a readable stack trace.
type Symbolizer interface {
	Symbolize(ctx context.Context, dump []byte) ([]byte, error)
}

// Settings tune the behaviour of the service.
type Settings struct {
	// KeepDeletedUsers archives user documents on deletion.
	KeepDeletedUsers bool
	// PairingTTL is the lifetime of pairing records.
	PairingTTL time.Duration
	// DelegateUser names the user the hub signs passports as.
	DelegateUser string
	// CrashRecipient receives crash reports.
	CrashRecipient string
	// PassportErrorRecipient receives passport generation failures.
	PassportErrorRecipient string
	// SalesRecipient is notified of new users.
	SalesRecipient string
}

// DefaultSettings mirrors the production configuration.
func DefaultSettings() Settings {
	return Settings{
		PairingTTL:             5 * time.Minute,
		DelegateUser:           "hub",
		CrashRecipient:         "crash@localhost",
		PassportErrorRecipient: "crash+passport_generation@localhost",
		SalesRecipient:         "sales@localhost",
	}
}

// Dependencies are the collaborators of the service. Only Store is
// mandatory.
type Dependencies struct {
	Store      docstore.Store
	Mailer     emailer.Sender
	Issuer     PassportIssuer
	Symbolizer Symbolizer
	Reports    blob.Store
	Metrics    MetricsRecorder
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Service implements the hub operations.
type Service struct {
	users    *Repository[domain.User]
	networks *Repository[domain.Network]
	volumes  *Repository[domain.Volume]
	drives   *Repository[domain.Drive]
	kvs      *Repository[domain.KeyValueStore]
	deleted  docstore.Collection
	pairing  docstore.Collection

	mailer     emailer.Sender
	issuer     PassportIssuer
	symbolizer Symbolizer
	reports    blob.Store
	metrics    MetricsRecorder
	logger     zerolog.Logger
	now        func() time.Time
	settings   Settings
}

// NewService opens the collections on deps.Store.
func NewService(ctx context.Context, deps Dependencies, settings Settings) (*Service, error) {
	cs, err := OpenCollections(ctx, deps.Store)
	if err != nil {
		return nil, err
	}
	if deps.Mailer == nil {
		deps.Mailer = emailer.NoOp{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if settings.PairingTTL <= 0 {
		settings.PairingTTL = DefaultSettings().PairingTTL
	}
	if settings.DelegateUser == "" {
		settings.DelegateUser = DefaultSettings().DelegateUser
	}
	m := deps.Metrics
	return &Service{
		users:      NewRepository(domain.UserSchema, cs.Users, func(u domain.User) string { return u.Name }, m),
		networks:   NewRepository(domain.NetworkSchema, cs.Networks, func(n domain.Network) string { return n.Name.String() }, m),
		volumes:    NewRepository(domain.VolumeSchema, cs.Volumes, func(v domain.Volume) string { return v.Name.String() }, m),
		drives:     NewRepository(domain.DriveSchema, cs.Drives, func(d domain.Drive) string { return d.Name.String() }, m),
		kvs:        NewRepository(domain.KeyValueStoreSchema, cs.KVS, func(k domain.KeyValueStore) string { return k.Name.String() }, m),
		deleted:    cs.DeletedUsers,
		pairing:    cs.Pairing,
		mailer:     deps.Mailer,
		issuer:     deps.Issuer,
		symbolizer: deps.Symbolizer,
		reports:    deps.Reports,
		metrics:    m,
		logger:     deps.Logger.With().Str("component", "core").Logger(),
		now:        deps.Now,
		settings:   settings,
	}, nil
}

// Settings returns the active settings.
func (s *Service) Settings() Settings { return s.settings }

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.now() }

// notify sends msg and logs delivery failures. Notifications never fail the
// operation they accompany.
func (s *Service) notify(ctx context.Context, msg emailer.Message) {
	if msg.To.Email == "" {
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("template", msg.Template).Str("to", msg.To.Email).Msg("email delivery failed")
	}
}
