package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerhub/pkg/domain"
)

func TestPurgeUserKeepsOtherUsersRecords(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 0, "alice@example.com")
	bob := f.user(t, "bob", 1, "bob@example.com")

	n := f.network(t, alice, "net")
	v := f.volume(t, alice, "vol", n)
	f.drive(t, alice, "photos", v)
	key := alice.PublicKey
	require.NoError(t, f.svc.CreateKeyValueStore(f.ctx, domain.KeyValueStore{Name: domain.NewQualifiedName("alice", "kv"), Network: n.Name.String(), Owner: &key}))

	bobVolume := f.volume(t, bob, "guest", n)
	bobNetwork := f.network(t, bob, "own")
	f.drive(t, bob, "docs", f.volume(t, bob, "bobvol", bobNetwork))

	report, err := f.svc.PurgeUser(f.ctx, "alice")
	require.NoError(t, err)
	require.True(t, report.Complete())
	assert.NoError(t, report.Err())
	assert.ElementsMatch(t, []string{
		"drive alice/photos",
		"volume alice/vol",
		"kvs alice/kv",
		"network alice/net",
	}, report.Removed)

	_, err = f.svc.Network(f.ctx, n.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Volume(f.ctx, v.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Volume(f.ctx, bobVolume.Name)
	assert.NoError(t, err)
	_, err = f.svc.Network(f.ctx, bobNetwork.Name)
	assert.NoError(t, err)
	bobDrives, err := f.svc.UserDrives(f.ctx, "bob", "")
	require.NoError(t, err)
	assert.Len(t, bobDrives, 1)

	_, err = f.svc.User(f.ctx, "alice")
	assert.NoError(t, err, "purging keeps the user record")

	assert.Equal(t, 1, f.metrics.count("purge.drive"))
	assert.Equal(t, 1, f.metrics.count("purge.network"))

	again, err := f.svc.PurgeUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, again.Complete())
	assert.Empty(t, again.Removed)
}

func TestPurgeUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PurgeUser(f.ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteUserWithPurgeArchivesUser(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.KeepDeletedUsers = true })
	alice := f.user(t, "alice", 0, "alice@example.com")
	n := f.network(t, alice, "net")
	f.drive(t, alice, "photos", f.volume(t, alice, "vol", n))

	report, err := f.svc.DeleteUser(f.ctx, "alice", true)
	require.NoError(t, err)
	assert.Contains(t, report.Removed, "user alice")
	assert.Contains(t, report.Removed, "network alice/net")

	_, err = f.svc.User(f.ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	versions, err := f.svc.DeletedUser(f.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "alice", versions[0]["name"])

	_, err = f.svc.DeleteUser(f.ctx, "alice", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteUserWithoutArchive(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice", 0, "alice@example.com")

	report, err := f.svc.DeleteUser(f.ctx, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"user alice"}, report.Removed)

	_, err = f.svc.DeletedUser(f.ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteNetworkAndVolumeWithPurge(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", 0, "alice@example.com")
	bob := f.user(t, "bob", 1, "bob@example.com")
	n := f.network(t, alice, "net")
	v := f.volume(t, alice, "vol", n)
	f.drive(t, alice, "photos", v)
	f.drive(t, bob, "shared", v)

	require.NoError(t, f.svc.DeleteVolume(f.ctx, "alice", v.Name, true))
	_, err := f.svc.Volume(f.ctx, v.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	remaining, err := f.svc.NetworkDrives(f.ctx, n.Name)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "bob", remaining[0].Name.Owner)

	other := f.volume(t, alice, "other", n)
	require.NoError(t, f.svc.DeleteNetwork(f.ctx, "alice", n.Name, true))
	_, err = f.svc.Network(f.ctx, n.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Volume(f.ctx, other.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, f.svc.DeleteNetwork(f.ctx, "alice", n.Name, false), domain.ErrNotFound)
}

func TestPurgeReportJoinsFailures(t *testing.T) {
	r := &PurgeReport{}
	r.removed(domain.EntityDrive, "alice/a")
	assert.True(t, r.Complete())
	assert.NoError(t, r.Err())

	r.failed(domain.EntityVolume, "alice/v", assert.AnError)
	assert.False(t, r.Complete())
	err := r.Err()
	assert.ErrorIs(t, err, assert.AnError)
	var failure PurgeFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, domain.EntityVolume, failure.Entity)
	assert.Contains(t, err.Error(), "purge volume alice/v")
}
