package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriveInvitationLifecycle(t *testing.T) {
	d := Drive{Name: NewQualifiedName("alice", "docs")}

	_, err := d.Confirm("bob")
	assert.ErrorIs(t, err, ErrNotInvited)

	changed, err := d.Invite("bob", Invitation{Permissions: "rw"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, InvitationPending, d.Users["bob"].Status)

	changed, err = d.Invite("bob", Invitation{Permissions: "r"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "rw", d.Users["bob"].Permissions)

	changed, err = d.Confirm("bob")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, InvitationOK, d.Users["bob"].Status)

	changed, err = d.Confirm("bob")
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.False(t, changed)

	_, err = d.Invite("bob", Invitation{Permissions: "rw"})
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestDriveInviteIgnoresRequestedStatus(t *testing.T) {
	d := Drive{Name: NewQualifiedName("alice", "docs")}

	added, err := d.Invite("carol@example.com", Invitation{Permissions: "rw", Status: InvitationOK})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, InvitationPending, d.Users["carol@example.com"].Status)

	added, err = d.Invite("bob", Invitation{Permissions: "r", Status: "bogus"})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, InvitationPending, d.Users["bob"].Status)
}

func TestNetworkStatisticsSumsNodes(t *testing.T) {
	n := Network{Storages: map[string]map[string]Statistics{
		"alice": {"n1": {Usage: 1, Capacity: 10}, "n2": {Usage: 2, Capacity: 20}},
		"bob":   {"n3": {Usage: 4, Capacity: 40}},
	}}

	assert.Equal(t, Statistics{Usage: 7, Capacity: 70}, n.Statistics())
	assert.Equal(t, Statistics{}, Network{}.Statistics())
}

func TestPairingExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := PairingInformation{Expiration: now}

	assert.False(t, p.Expired(now))
	assert.True(t, p.Expired(now.Add(time.Second)))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, NameValidator("alice_01"))
	assert.Error(t, NameValidator("Alice"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator(42))

	assert.NoError(t, QualifiedNameValidator("alice/net"))
	assert.Error(t, QualifiedNameValidator("alice/Net"))

	assert.NoError(t, DescriptionValidator(strings.Repeat("é", MaxDescriptionLength)))
	assert.Error(t, DescriptionValidator(strings.Repeat("x", MaxDescriptionLength+1)))

	assert.NoError(t, EmailValidator("alice@example.com"))
	assert.Error(t, EmailValidator("alice@"))
}
