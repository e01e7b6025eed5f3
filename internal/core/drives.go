package core

import (
	"context"
	"errors"
	"strings"

	"peerhub/internal/emailer"
	"peerhub/internal/index"
	"peerhub/pkg/domain"
)

// CreateDrive registers d.
func (s *Service) CreateDrive(ctx context.Context, d domain.Drive) error {
	if err := s.drives.Create(ctx, d); err != nil {
		return err
	}
	s.logger.Info().Str("drive", d.Name.String()).Str("volume", d.Volume).Msg("drive created")
	return nil
}

// Drive returns the named drive.
func (s *Service) Drive(ctx context.Context, name domain.QualifiedName) (domain.Drive, error) {
	return s.drives.Get(ctx, name.String())
}

// DeleteDrive removes the named drive.
func (s *Service) DeleteDrive(ctx context.Context, name domain.QualifiedName) error {
	return s.drives.Delete(ctx, name.String())
}

// UserDrives lists the drives name owns or is a member of. A non-empty
// status keeps only the drives where the membership of name has that
// status; owners count as accepted members.
func (s *Service) UserDrives(ctx context.Context, name string, status domain.InvitationStatus) ([]domain.Drive, error) {
	drives, err := s.drives.Query(ctx, index.PerMemberName, name)
	if err != nil || status == "" {
		return drives, err
	}
	out := drives[:0]
	for _, d := range drives {
		current := domain.InvitationOK
		if inv, ok := d.Users[name]; ok {
			current = inv.Status
		} else if d.Owner != name {
			continue
		}
		if current == status {
			out = append(out, d)
		}
	}
	return out, nil
}

// Invite adds key as a pending member of the drive and emails the invitee.
// Keys holding an "@" are email addresses of people without an account.
// Inviting a pending member again is a no-op reporting false.
func (s *Service) Invite(ctx context.Context, name domain.QualifiedName, key string, inv domain.Invitation) (bool, error) {
	d, err := s.drives.Fetch(ctx, name.String())
	if err != nil {
		return false, err
	}
	added, err := d.Value.Invite(key, inv)
	if err != nil || !added {
		return false, err
	}
	if err := s.drives.Save(ctx, d); err != nil {
		return false, err
	}
	s.sendInvitation(ctx, d.Value, key)
	return true, nil
}

// InviteMany invites every member of invitations in a single save. Members
// already pending or accepted are left untouched. It returns the keys that
// were added.
func (s *Service) InviteMany(ctx context.Context, name domain.QualifiedName, invitations map[string]domain.Invitation) ([]string, error) {
	d, err := s.drives.Fetch(ctx, name.String())
	if err != nil {
		return nil, err
	}
	var added []string
	for _, key := range sortedKeys(invitations) {
		ok, err := d.Value.Invite(key, invitations[key])
		if err != nil && !errors.Is(err, domain.ErrAlreadyConfirmed) {
			return nil, err
		}
		if ok {
			added = append(added, key)
		}
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := s.drives.Save(ctx, d); err != nil {
		return nil, err
	}
	for _, key := range added {
		s.sendInvitation(ctx, d.Value, key)
	}
	return added, nil
}

// Confirm accepts the pending invitation of key and notifies the drive
// owner. Confirming an accepted member again reports false without error.
func (s *Service) Confirm(ctx context.Context, name domain.QualifiedName, key string) (bool, error) {
	d, err := s.drives.Fetch(ctx, name.String())
	if err != nil {
		return false, err
	}
	changed, err := d.Value.Confirm(key)
	if errors.Is(err, domain.ErrAlreadyConfirmed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.drives.Save(ctx, d); err != nil {
		return false, err
	}
	owner, err := s.users.Get(ctx, d.Value.Owner)
	if err != nil {
		s.logger.Warn().Err(err).Str("drive", name.String()).Msg("drive owner lookup failed")
		return changed, nil
	}
	s.notify(ctx, emailer.Message{
		Template: emailer.TemplateDriveJoined,
		To:       emailer.Recipient{Email: owner.Email, Name: owner.Name},
		Variables: map[string]any{
			"owner":   userVariables(owner),
			"invitee": key,
			"drive":   driveVariables(d.Value),
		},
	})
	return changed, nil
}

func (s *Service) sendInvitation(ctx context.Context, d domain.Drive, key string) {
	vars := map[string]any{
		"drive":   driveVariables(d),
		"inviter": d.Owner,
	}
	if strings.Contains(key, "@") {
		vars["email"] = key
		s.notify(ctx, emailer.Message{
			Template:  emailer.TemplateDrivePlainInvitation,
			To:        emailer.Recipient{Email: key},
			Variables: vars,
		})
		return
	}
	invitee, err := s.users.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("drive", d.Name.String()).Str("invitee", key).Msg("invitee lookup failed")
		return
	}
	vars["invitee"] = userVariables(invitee)
	s.notify(ctx, emailer.Message{
		Template:  emailer.TemplateDriveInvitation,
		To:        emailer.Recipient{Email: invitee.Email, Name: invitee.Name},
		Variables: vars,
	})
}

func driveVariables(d domain.Drive) map[string]any {
	vars := map[string]any{
		"name":    d.Name.String(),
		"owner":   d.Owner,
		"network": d.Network,
		"volume":  d.Volume,
	}
	if d.Description != nil {
		vars["description"] = *d.Description
	}
	return vars
}
