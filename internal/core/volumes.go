package core

import (
	"context"
	"errors"
	"sort"

	"peerhub/internal/index"
	"peerhub/pkg/domain"
)

// CreateVolume registers v. The network it references is not required to
// exist.
func (s *Service) CreateVolume(ctx context.Context, v domain.Volume) error {
	if err := s.volumes.Create(ctx, v); err != nil {
		return err
	}
	s.logger.Info().Str("volume", v.Name.String()).Str("network", v.Network).Msg("volume created")
	return nil
}

// Volume returns the named volume.
func (s *Service) Volume(ctx context.Context, name domain.QualifiedName) (domain.Volume, error) {
	return s.volumes.Get(ctx, name.String())
}

// DeleteVolume removes the named volume. With purge set, the drives of the
// volume owned by actor are removed first; a failure there leaves the
// volume in place.
func (s *Service) DeleteVolume(ctx context.Context, actor string, name domain.QualifiedName, purge bool) error {
	if purge {
		report, err := s.VolumePurge(ctx, actor, name)
		if err != nil {
			return err
		}
		if !report.Complete() {
			return report.Err()
		}
	}
	return s.volumes.Delete(ctx, name.String())
}

// VolumePurge removes the drives of the volume owned by actor.
func (s *Service) VolumePurge(ctx context.Context, actor string, name domain.QualifiedName) (*PurgeReport, error) {
	drives, err := s.VolumeDrives(ctx, name)
	if err != nil {
		return nil, err
	}
	report := &PurgeReport{}
	for _, d := range drives {
		if d.Name.Owner != actor {
			continue
		}
		s.purgeOne(ctx, report, domain.EntityDrive, d.Name.String(), s.drives.Delete)
	}
	return report, nil
}

// VolumeDrives lists the drives backed by the volume.
func (s *Service) VolumeDrives(ctx context.Context, name domain.QualifiedName) ([]domain.Drive, error) {
	return s.drives.Query(ctx, index.PerVolumeID, name.String())
}

// UserVolumes lists the volumes of every network u belongs to together with
// the volumes u owns, each once, ordered by name.
func (s *Service) UserVolumes(ctx context.Context, u domain.User) ([]domain.Volume, error) {
	networks, err := s.NetworksForUser(ctx, u)
	if err != nil {
		return nil, err
	}
	byName := map[string]domain.Volume{}
	for _, n := range networks {
		volumes, err := s.NetworkVolumes(ctx, n.Name)
		if err != nil {
			return nil, err
		}
		for _, v := range volumes {
			byName[v.Name.String()] = v
		}
	}
	owned, err := s.volumes.Query(ctx, index.PerOwnerKey, u.PublicKey.RSA)
	if err != nil {
		return nil, err
	}
	for _, v := range owned {
		byName[v.Name.String()] = v
	}
	return sortedValues(byName), nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValues[T any](m map[string]T) []T {
	keys := sortedKeys(m)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
