package core

import (
	"context"
	"errors"
	"sort"

	"peerhub/internal/index"
	"peerhub/pkg/domain"
)

// CreateNetwork registers n.
func (s *Service) CreateNetwork(ctx context.Context, n domain.Network) error {
	if err := s.networks.Create(ctx, n); err != nil {
		return err
	}
	s.logger.Info().Str("network", n.Name.String()).Msg("network created")
	return nil
}

// Network returns the named network.
func (s *Service) Network(ctx context.Context, name domain.QualifiedName) (domain.Network, error) {
	return s.networks.Get(ctx, name.String())
}

// DeleteNetwork removes the network record. With purge set, the
// dependents owned by actor are removed first and the network is kept when
// one of them could not be.
func (s *Service) DeleteNetwork(ctx context.Context, actor string, name domain.QualifiedName, purge bool) error {
	if purge {
		report, err := s.PurgeNetwork(ctx, actor, name)
		if err != nil {
			return err
		}
		if !report.Complete() {
			return report.Err()
		}
	}
	return s.networks.Delete(ctx, name.String())
}

// Passport returns the passport of invitee on the network.
func (s *Service) Passport(ctx context.Context, name domain.QualifiedName, invitee string) (domain.Passport, error) {
	n, err := s.Network(ctx, name)
	if err != nil {
		return domain.Passport{}, err
	}
	p, ok := n.Passports[invitee]
	if !ok {
		return domain.Passport{}, domain.NotFoundError{Entity: domain.EntityPassport, Name: name.String() + "/" + invitee}
	}
	return p, nil
}

// PutPassport stores the passport of invitee without reading the network
// first. Passports of other invitees written concurrently are preserved.
func (s *Service) PutPassport(ctx context.Context, name domain.QualifiedName, invitee string, p domain.Passport) error {
	n, err := s.networks.Track(domain.Network{Name: name})
	if err != nil {
		return err
	}
	n.Value.Passports = map[string]domain.Passport{invitee: p}
	return s.networks.Save(ctx, n)
}

// DeletePassport revokes the passport of invitee.
func (s *Service) DeletePassport(ctx context.Context, name domain.QualifiedName, invitee string) error {
	n, err := s.networks.Fetch(ctx, name.String())
	if err != nil {
		return err
	}
	if _, ok := n.Value.Passports[invitee]; !ok {
		return domain.NotFoundError{Entity: domain.EntityPassport, Name: name.String() + "/" + invitee}
	}
	delete(n.Value.Passports, invitee)
	return s.networks.Save(ctx, n)
}

// Endpoints returns the published endpoints of the network keyed by user
// then node.
func (s *Service) Endpoints(ctx context.Context, name domain.QualifiedName) (map[string]map[string]domain.Endpoints, error) {
	n, err := s.Network(ctx, name)
	if err != nil {
		return nil, err
	}
	if n.Endpoints == nil {
		return map[string]map[string]domain.Endpoints{}, nil
	}
	return n.Endpoints, nil
}

// PutEndpoints publishes the endpoints of a node.
func (s *Service) PutEndpoints(ctx context.Context, name domain.QualifiedName, user, node string, e domain.Endpoints) error {
	n, err := s.networks.Track(domain.Network{Name: name})
	if err != nil {
		return err
	}
	n.Value.Endpoints = map[string]map[string]domain.Endpoints{user: {node: e}}
	return s.networks.Save(ctx, n)
}

// DeleteEndpoints withdraws the endpoints of a node. Withdrawing unknown
// endpoints is a no-op.
func (s *Service) DeleteEndpoints(ctx context.Context, name domain.QualifiedName, user, node string) error {
	n, err := s.networks.Fetch(ctx, name.String())
	if err != nil {
		return err
	}
	nodes, ok := n.Value.Endpoints[user]
	if !ok {
		return nil
	}
	delete(nodes, node)
	return s.networks.Save(ctx, n)
}

// PutStatistics records the storage usage reported by a node.
func (s *Service) PutStatistics(ctx context.Context, name domain.QualifiedName, user, node string, stats domain.Statistics) error {
	n, err := s.networks.Track(domain.Network{Name: name})
	if err != nil {
		return err
	}
	n.Value.Storages = map[string]map[string]domain.Statistics{user: {node: stats}}
	return s.networks.Save(ctx, n)
}

// NetworkStatistics sums the usage and capacity reported by every node.
func (s *Service) NetworkStatistics(ctx context.Context, name domain.QualifiedName) (domain.Statistics, error) {
	rows, err := s.networks.Reduce(ctx, index.Stats, name.String())
	if err != nil {
		return domain.Statistics{}, err
	}
	if len(rows) == 0 {
		return domain.Statistics{}, domain.NotFoundError{Entity: domain.EntityNetwork, Name: name.String()}
	}
	return index.DecodeStatistics(rows[0].Value), nil
}

// NetworksForUser lists the networks user owns or holds a passport for.
func (s *Service) NetworksForUser(ctx context.Context, u domain.User) ([]domain.Network, error) {
	return s.networks.Query(ctx, index.PerUserKey, u.PublicKey.RSA)
}

// NetworksOwnedBy lists the networks owned by key.
func (s *Service) NetworksOwnedBy(ctx context.Context, key domain.PublicKey) ([]domain.Network, error) {
	return s.networks.Query(ctx, index.PerOwnerKey, key.RSA)
}

// NetworksForInvitee lists the networks holding a passport for the named
// user.
func (s *Service) NetworksForInvitee(ctx context.Context, name string) ([]domain.Network, error) {
	return s.networks.Query(ctx, index.PerInviteeName, name)
}

// NetworkMembers returns the users holding a passport on the network, the
// owner included when registered. Passports of unknown users are skipped.
func (s *Service) NetworkMembers(ctx context.Context, name domain.QualifiedName) ([]domain.User, error) {
	n, err := s.Network(ctx, name)
	if err != nil {
		return nil, err
	}
	names := map[string]struct{}{name.Owner: {}}
	for invitee := range n.Passports {
		names[invitee] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for member := range names {
		sorted = append(sorted, member)
	}
	sort.Strings(sorted)
	var out []domain.User
	for _, member := range sorted {
		u, err := s.users.Get(ctx, member)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// NetworkVolumes lists the volumes of the network.
func (s *Service) NetworkVolumes(ctx context.Context, name domain.QualifiedName) ([]domain.Volume, error) {
	return s.volumes.Query(ctx, index.PerNetworkID, name.String())
}

// NetworkDrives lists the drives of the network.
func (s *Service) NetworkDrives(ctx context.Context, name domain.QualifiedName) ([]domain.Drive, error) {
	return s.drives.Query(ctx, index.PerNetworkID, name.String())
}

// NetworkKeyValueStores lists the key-value stores of the network.
func (s *Service) NetworkKeyValueStores(ctx context.Context, name domain.QualifiedName) ([]domain.KeyValueStore, error) {
	return s.kvs.Query(ctx, index.PerNetworkID, name.String())
}
