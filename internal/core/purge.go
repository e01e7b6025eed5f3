package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"peerhub/pkg/domain"
)

// PurgeFailure is a dependent a purge could not remove.
type PurgeFailure struct {
	Entity domain.EntityType
	Name   string
	Err    error
}

func (f PurgeFailure) Error() string {
	return fmt.Sprintf("purge %s %s: %v", f.Entity, f.Name, f.Err)
}

func (f PurgeFailure) Unwrap() error { return f.Err }

// PurgeReport accounts for the steps of a purge. A purge is resumable:
// running it again retries the failed steps and skips what is gone.
type PurgeReport struct {
	mu      sync.Mutex
	Removed []string
	Failed  []PurgeFailure
}

// Complete reports whether no step failed.
func (r *PurgeReport) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failed) == 0
}

// Err joins the failures, or returns nil when the purge completed.
func (r *PurgeReport) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

func (r *PurgeReport) removed(entity domain.EntityType, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Removed = append(r.Removed, string(entity)+" "+name)
}

func (r *PurgeReport) failed(entity domain.EntityType, name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, PurgeFailure{Entity: entity, Name: name, Err: err})
}

// purgeOne deletes one dependent. A dependent already gone counts as
// removed.
func (s *Service) purgeOne(ctx context.Context, r *PurgeReport, entity domain.EntityType, name string, del func(context.Context, string) error) bool {
	start := time.Now()
	err := ignoreNotFound(del(ctx, name))
	s.metrics.Observe(ctx, "purge."+string(entity), err == nil, time.Since(start))
	if err != nil {
		s.logger.Error().Err(err).Str("entity", string(entity)).Str("name", name).Msg("purge step failed")
		r.failed(entity, name, err)
		return false
	}
	r.removed(entity, name)
	return true
}

// dependents are the records a purge removes, keyed by qualified name.
type dependents struct {
	networks map[string]domain.Network
	volumes  map[string]domain.Volume
	kvs      map[string]domain.KeyValueStore
	drives   map[string]domain.Drive
}

// remove deletes d bottom-up: drives, then volumes and key-value stores,
// then networks. A parent whose dependents could not be removed is kept.
func (s *Service) remove(ctx context.Context, d dependents) *PurgeReport {
	report := &PurgeReport{}
	blocked := map[string]bool{}
	for _, name := range sortedKeys(d.drives) {
		drive := d.drives[name]
		if !s.purgeOne(ctx, report, domain.EntityDrive, name, s.drives.Delete) {
			blocked[drive.Volume] = true
			blocked[drive.Network] = true
		}
	}
	for _, name := range sortedKeys(d.volumes) {
		v := d.volumes[name]
		if blocked[name] {
			report.failed(domain.EntityVolume, name, errors.New("dependent drives remain"))
			blocked[v.Network] = true
			continue
		}
		if !s.purgeOne(ctx, report, domain.EntityVolume, name, s.volumes.Delete) {
			blocked[v.Network] = true
		}
	}
	for _, name := range sortedKeys(d.kvs) {
		if !s.purgeOne(ctx, report, domain.EntityKeyValueStore, name, s.kvs.Delete) {
			blocked[d.kvs[name].Network] = true
		}
	}
	for _, name := range sortedKeys(d.networks) {
		if blocked[name] {
			report.failed(domain.EntityNetwork, name, errors.New("dependents remain"))
			continue
		}
		s.purgeOne(ctx, report, domain.EntityNetwork, name, s.networks.Delete)
	}
	return report
}

// PurgeUser removes every network, volume, key-value store and drive owned
// by the named user. Records of other users, including those hosted on the
// purged networks, are left alone.
func (s *Service) PurgeUser(ctx context.Context, name string) (*PurgeReport, error) {
	u, err := s.users.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	var (
		networks []domain.Network
		volumes  []domain.Volume
		stores   []domain.KeyValueStore
		drives   []domain.Drive
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		networks, err = s.NetworksForUser(gctx, u)
		return err
	})
	g.Go(func() (err error) {
		volumes, err = s.UserVolumes(gctx, u)
		return err
	})
	g.Go(func() (err error) {
		stores, err = s.UserKeyValueStores(gctx, u)
		return err
	})
	g.Go(func() (err error) {
		drives, err = s.UserDrives(gctx, name, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather dependents of %s: %w", name, err)
	}

	d := dependents{
		networks: map[string]domain.Network{},
		volumes:  map[string]domain.Volume{},
		kvs:      map[string]domain.KeyValueStore{},
		drives:   map[string]domain.Drive{},
	}
	for _, n := range networks {
		if n.Name.Owner == name {
			d.networks[n.Name.String()] = n
		}
	}
	for _, v := range volumes {
		if v.Name.Owner == name {
			d.volumes[v.Name.String()] = v
		}
	}
	for _, kvs := range stores {
		if kvs.Name.Owner == name {
			d.kvs[kvs.Name.String()] = kvs
		}
	}
	for _, drive := range drives {
		if drive.Name.Owner == name {
			d.drives[drive.Name.String()] = drive
		}
	}

	// Drives of owned networks the user is not a member of.
	var mu sync.Mutex
	g, gctx = errgroup.WithContext(ctx)
	for _, n := range d.networks {
		g.Go(func() error {
			found, err := s.NetworkDrives(gctx, n.Name)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, drive := range found {
				if drive.Name.Owner == name {
					d.drives[drive.Name.String()] = drive
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather drives of %s: %w", name, err)
	}

	report := s.remove(ctx, d)
	s.logger.Info().
		Str("user", name).
		Int("removed", len(report.Removed)).
		Int("failed", len(report.Failed)).
		Msg("user purged")
	return report, nil
}

// PurgeNetwork removes the volumes, key-value stores and drives of the
// network owned by actor. The network itself is kept.
func (s *Service) PurgeNetwork(ctx context.Context, actor string, name domain.QualifiedName) (*PurgeReport, error) {
	var (
		volumes []domain.Volume
		stores  []domain.KeyValueStore
		drives  []domain.Drive
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		volumes, err = s.NetworkVolumes(gctx, name)
		return err
	})
	g.Go(func() (err error) {
		stores, err = s.NetworkKeyValueStores(gctx, name)
		return err
	})
	g.Go(func() (err error) {
		drives, err = s.NetworkDrives(gctx, name)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather dependents of %s: %w", name, err)
	}
	d := dependents{
		volumes: map[string]domain.Volume{},
		kvs:     map[string]domain.KeyValueStore{},
		drives:  map[string]domain.Drive{},
	}
	for _, v := range volumes {
		if v.Name.Owner == actor {
			d.volumes[v.Name.String()] = v
		}
	}
	for _, kvs := range stores {
		if kvs.Name.Owner == actor {
			d.kvs[kvs.Name.String()] = kvs
		}
	}
	for _, drive := range drives {
		if drive.Name.Owner == actor {
			d.drives[drive.Name.String()] = drive
		}
	}
	return s.remove(ctx, d), nil
}

// DeleteUser removes the named user. With purge set, everything the user
// owns is removed first and the user record is kept when a step fails.
// When deleted users are kept, the last document is archived.
func (s *Service) DeleteUser(ctx context.Context, name string, purge bool) (*PurgeReport, error) {
	u, err := s.users.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	report := &PurgeReport{}
	if purge {
		if report, err = s.PurgeUser(ctx, name); err != nil {
			return nil, err
		}
		if !report.Complete() {
			return report, report.Err()
		}
	}
	if s.settings.KeepDeletedUsers {
		if err := s.archiveUser(ctx, u); err != nil {
			return report, fmt.Errorf("archive user %s: %w", name, err)
		}
	}
	if err := s.users.Delete(ctx, name); err != nil {
		return report, err
	}
	report.removed(domain.EntityUser, name)
	s.logger.Info().Str("user", name).Bool("purge", purge).Msg("user deleted")
	return report, nil
}
