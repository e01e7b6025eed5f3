package core

import (
	"context"
	"fmt"

	"peerhub/internal/docstore"
	"peerhub/internal/index"
)

// Collections holds every collection the service works with.
type Collections struct {
	Users        docstore.Collection
	DeletedUsers docstore.Collection
	Networks     docstore.Collection
	Volumes      docstore.Collection
	Drives       docstore.Collection
	KVS          docstore.Collection
	Pairing      docstore.Collection
}

// OpenCollections registers the index designs on store and returns the
// collections.
func OpenCollections(ctx context.Context, store docstore.Store) (Collections, error) {
	designs := index.Designs()
	open := func(name string) (docstore.Collection, error) {
		c, err := store.Collection(ctx, name, designs[name])
		if err != nil {
			return nil, fmt.Errorf("open collection %s: %w", name, err)
		}
		return c, nil
	}
	var (
		cs  Collections
		err error
	)
	targets := []struct {
		name string
		dst  *docstore.Collection
	}{
		{index.Users, &cs.Users},
		{index.DeletedUsers, &cs.DeletedUsers},
		{index.Networks, &cs.Networks},
		{index.Volumes, &cs.Volumes},
		{index.Drives, &cs.Drives},
		{index.KVS, &cs.KVS},
		{index.Pairing, &cs.Pairing},
	}
	for _, t := range targets {
		if *t.dst, err = open(t.name); err != nil {
			return Collections{}, err
		}
	}
	return cs, nil
}
