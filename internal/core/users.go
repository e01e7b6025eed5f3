package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"peerhub/internal/docstore"
	"peerhub/internal/emailer"
	"peerhub/internal/index"
	"peerhub/pkg/domain"
)

// CreateUser registers u. Registering the same name again with the same
// public key succeeds without change and reports created as false. The
// primary email, when given, starts unconfirmed with a fresh code.
func (s *Service) CreateUser(ctx context.Context, u domain.User) (created bool, err error) {
	u.Emails = nil
	if u.Email != "" {
		u.Emails = map[string]domain.Confirmation{u.Email: domain.Pending(uuid.NewString())}
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			existing, getErr := s.users.Get(ctx, u.Name)
			if getErr == nil && existing.PublicKey.Equal(u.PublicKey) {
				return false, nil
			}
		}
		return false, err
	}
	s.logger.Info().Str("user", u.Name).Msg("user created")
	vars := map[string]any{"user": userVariables(u)}
	if c, ok := u.Emails[u.Email]; ok {
		vars["confirm_key"] = c.Code
	}
	s.notify(ctx, emailer.Message{
		Template:  emailer.TemplateWelcome,
		To:        emailer.Recipient{Email: u.Email, Name: u.Name},
		Variables: vars,
	})
	s.notify(ctx, emailer.Message{
		Template:  emailer.TemplateNewCustomer,
		To:        emailer.Recipient{Email: s.settings.SalesRecipient},
		Variables: map[string]any{"user": userVariables(u)},
	})
	return true, nil
}

// User returns the named user.
func (s *Service) User(ctx context.Context, name string) (domain.User, error) {
	return s.users.Get(ctx, name)
}

// Users lists every user.
func (s *Service) Users(ctx context.Context) ([]domain.User, error) {
	return s.users.All(ctx)
}

// UserByShortKeyHash finds the user whose public key hashes to short.
func (s *Service) UserByShortKeyHash(ctx context.Context, short string) (domain.User, error) {
	return s.single(ctx, index.PerShortKeyHash, short)
}

// UserByLDAPDN finds the user bound to a directory entry.
func (s *Service) UserByLDAPDN(ctx context.Context, dn string) (domain.User, error) {
	return s.single(ctx, index.PerLDAPDN, dn)
}

// UsersByEmail lists users having registered email.
func (s *Service) UsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	return s.users.Query(ctx, index.PerEmail, email)
}

func (s *Service) single(ctx context.Context, view, key string) (domain.User, error) {
	users, err := s.users.Query(ctx, view, key)
	if err != nil {
		return domain.User{}, err
	}
	if len(users) == 0 {
		return domain.User{}, domain.NotFoundError{Entity: domain.EntityUser, Name: key}
	}
	return users[0], nil
}

// LinkAccount stores the credentials of a third-party account on the user.
func (s *Service) LinkAccount(ctx context.Context, name, provider, id string, account domain.Account) error {
	u, err := s.users.Track(domain.User{Name: name})
	if err != nil {
		return err
	}
	accounts := map[string]domain.Account{id: account}
	switch provider {
	case domain.ProviderDropbox:
		u.Value.DropboxAccounts = accounts
	case domain.ProviderGoogle:
		u.Value.GoogleAccounts = accounts
	case domain.ProviderGCS:
		u.Value.GCSAccounts = accounts
	default:
		return domain.InvalidFormatError{Entity: domain.EntityUser, Field: "provider", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
	return s.users.Save(ctx, u)
}

// UnlinkAccount drops a third-party account from the user.
func (s *Service) UnlinkAccount(ctx context.Context, name, provider, id string) error {
	u, err := s.users.Fetch(ctx, name)
	if err != nil {
		return err
	}
	accounts := u.Value.Accounts(provider)
	if _, ok := accounts[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, Name: name + "/credentials/" + provider + "/" + id}
	}
	delete(accounts, id)
	return s.users.Save(ctx, u)
}

// AddEmail registers an additional address on the user and sends its
// confirmation code. Adding a confirmed address again is a no-op.
func (s *Service) AddEmail(ctx context.Context, name, email string) error {
	if err := domain.EmailValidator(email); err != nil {
		return domain.InvalidFormatError{Entity: domain.EntityUser, Field: "email", Reason: err.Error()}
	}
	u, err := s.users.Fetch(ctx, name)
	if err != nil {
		return err
	}
	current, ok := u.Value.Emails[email]
	if ok && current.Confirmed {
		return nil
	}
	code := current.Code
	if !ok || code == "" {
		code = uuid.NewString()
		if u.Value.Emails == nil {
			u.Value.Emails = map[string]domain.Confirmation{}
		}
		u.Value.Emails[email] = domain.Pending(code)
		if err := s.users.Save(ctx, u); err != nil {
			return err
		}
	}
	s.notify(ctx, emailer.Message{
		Template:  emailer.TemplateConfirmEmail,
		To:        emailer.Recipient{Email: email, Name: name},
		Variables: map[string]any{"user": userVariables(u.Value), "email": email, "confirm_key": code},
	})
	return nil
}

// ConfirmEmail marks email as confirmed when code matches, then converts
// the pending drive invitations sent to that address into invitations of
// the user.
func (s *Service) ConfirmEmail(ctx context.Context, name, email, code string) error {
	u, err := s.users.Fetch(ctx, name)
	if err != nil {
		return err
	}
	current, ok := u.Value.Emails[email]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, Name: name + "/emails/" + email}
	}
	if current.Confirmed {
		return nil
	}
	if current.Code != code {
		return fmt.Errorf("%w: confirmation code mismatch", domain.ErrForbidden)
	}
	u.Value.Emails[email] = domain.Confirmed
	if err := s.users.Save(ctx, u); err != nil {
		return err
	}
	s.ProcessInvitations(ctx, u.Value, email)
	return nil
}

// DeletedUser returns the archived versions of a deleted user.
func (s *Service) DeletedUser(ctx context.Context, name string) ([]map[string]any, error) {
	doc, err := s.deleted.Get(ctx, name)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, domain.NotFoundError{Entity: domain.EntityUser, Name: name}
	}
	if err != nil {
		return nil, err
	}
	raw, _ := doc["versions"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// ArchiveUser appends the current document of name to its deleted-users
// archive and returns the archived versions.
func (s *Service) ArchiveUser(ctx context.Context, name string) ([]map[string]any, error) {
	u, err := s.users.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.archiveUser(ctx, u); err != nil {
		return nil, err
	}
	return s.DeletedUser(ctx, name)
}

func (s *Service) archiveUser(ctx context.Context, u domain.User) error {
	doc, err := domain.ToDocument(u)
	if err != nil {
		return err
	}
	archive, err := s.deleted.Get(ctx, u.Name)
	if errors.Is(err, docstore.ErrNotFound) {
		archive = map[string]any{"name": u.Name, "versions": []any{}}
	} else if err != nil {
		return err
	}
	versions, _ := archive["versions"].([]any)
	archive["versions"] = append(versions, doc)
	return s.deleted.Put(ctx, u.Name, archive)
}

func userVariables(u domain.User) map[string]any {
	return map[string]any{"name": u.Name, "email": u.Email, "fullname": u.Fullname}
}
