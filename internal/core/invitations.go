package core

import (
	"context"
	"errors"
	"fmt"

	"peerhub/internal/emailer"
	"peerhub/pkg/domain"
)

var errNoIssuer = errors.New("no passport issuer configured")

// ProcessInvitations turns the drive invitations sent to email before u
// had an account into invitations of u. A passport for the drive network
// is issued on behalf of the delegate user. Failures do not stop the
// remaining drives; they are returned and mailed to the passport error
// recipient.
func (s *Service) ProcessInvitations(ctx context.Context, u domain.User, email string) []error {
	drives, err := s.UserDrives(ctx, email, "")
	if err != nil {
		return s.reportInvitationErrors(ctx, u, email, []error{fmt.Errorf("list invitations: %w", err)})
	}
	if len(drives) == 0 {
		return nil
	}
	var errs []error
	delegate, err := s.users.Get(ctx, s.settings.DelegateUser)
	if err != nil {
		return s.reportInvitationErrors(ctx, u, email, []error{fmt.Errorf("load delegate %s: %w", s.settings.DelegateUser, err)})
	}
	for _, d := range drives {
		if err := s.convertInvitation(ctx, delegate, u, email, d); err != nil {
			errs = append(errs, fmt.Errorf("drive %s: %w", d.Name, err))
		}
	}
	return s.reportInvitationErrors(ctx, u, email, errs)
}

func (s *Service) convertInvitation(ctx context.Context, delegate, u domain.User, email string, d domain.Drive) error {
	inv, ok := d.Users[email]
	if !ok {
		return nil
	}
	networkName, err := domain.ParseQualifiedName(d.Network)
	if err != nil {
		return err
	}
	network, err := s.Network(ctx, networkName)
	if err != nil {
		return err
	}
	if _, member := network.Passports[u.Name]; !member {
		if s.issuer == nil {
			return errNoIssuer
		}
		passport, err := s.issuer.Issue(ctx, delegate, u, network)
		if err != nil {
			return fmt.Errorf("issue passport: %w", err)
		}
		if err := s.PutPassport(ctx, networkName, u.Name, passport); err != nil {
			return fmt.Errorf("store passport: %w", err)
		}
	}
	tracked, err := s.drives.Fetch(ctx, d.Name.String())
	if err != nil {
		return err
	}
	delete(tracked.Value.Users, email)
	if _, exists := tracked.Value.Users[u.Name]; !exists {
		tracked.Value.Users[u.Name] = inv
	}
	return s.drives.Save(ctx, tracked)
}

func (s *Service) reportInvitationErrors(ctx context.Context, u domain.User, email string, errs []error) []error {
	if len(errs) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(errs))
	for _, err := range errs {
		s.logger.Error().Err(err).Str("user", u.Name).Str("email", email).Msg("invitation conversion failed")
		reasons = append(reasons, err.Error())
	}
	s.notify(ctx, emailer.Message{
		Template: emailer.TemplatePassportError,
		To:       emailer.Recipient{Email: s.settings.PassportErrorRecipient},
		Variables: map[string]any{
			"user":   userVariables(u),
			"email":  email,
			"errors": reasons,
		},
	})
	return errs
}
