package core

import (
	"context"

	"peerhub/internal/index"
	"peerhub/pkg/domain"
)

// CreateKeyValueStore registers kvs.
func (s *Service) CreateKeyValueStore(ctx context.Context, kvs domain.KeyValueStore) error {
	if err := s.kvs.Create(ctx, kvs); err != nil {
		return err
	}
	s.logger.Info().Str("kvs", kvs.Name.String()).Str("network", kvs.Network).Msg("key-value store created")
	return nil
}

// KeyValueStore returns the named key-value store.
func (s *Service) KeyValueStore(ctx context.Context, name domain.QualifiedName) (domain.KeyValueStore, error) {
	return s.kvs.Get(ctx, name.String())
}

// DeleteKeyValueStore removes the named key-value store.
func (s *Service) DeleteKeyValueStore(ctx context.Context, name domain.QualifiedName) error {
	return s.kvs.Delete(ctx, name.String())
}

// UserKeyValueStores lists the key-value stores of every network u belongs
// to together with the ones u owns.
func (s *Service) UserKeyValueStores(ctx context.Context, u domain.User) ([]domain.KeyValueStore, error) {
	networks, err := s.NetworksForUser(ctx, u)
	if err != nil {
		return nil, err
	}
	byName := map[string]domain.KeyValueStore{}
	for _, n := range networks {
		stores, err := s.NetworkKeyValueStores(ctx, n.Name)
		if err != nil {
			return nil, err
		}
		for _, kvs := range stores {
			byName[kvs.Name.String()] = kvs
		}
	}
	owned, err := s.kvs.Query(ctx, index.PerOwnerKey, u.PublicKey.RSA)
	if err != nil {
		return nil, err
	}
	for _, kvs := range owned {
		byName[kvs.Name.String()] = kvs
	}
	return sortedValues(byName), nil
}
