// Package domain defines the records kept by the hub together with the
// schema descriptors used to validate, diff and merge their documents.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the kind of record stored by the hub.
type EntityType string

// Entity type discriminators. The value doubles as the prefix of error codes
// reported to clients ("network/not_found").
const (
	EntityUser          EntityType = "user"
	EntityNetwork       EntityType = "network"
	EntityPassport      EntityType = "passport"
	EntityVolume        EntityType = "volume"
	EntityDrive         EntityType = "drive"
	EntityInvitation    EntityType = "invitation"
	EntityKeyValueStore EntityType = "kvs"
	EntityPairing       EntityType = "pairing"
	EntityEndpoint      EntityType = "endpoint"
	EntityCrashReport   EntityType = "crash_report"
)

// DefaultNetworkVersion is assigned to networks created without a version.
const DefaultNetworkVersion = "0.3.0"

// Account holds the credentials of a third-party storage account linked to a
// user.
type Account struct {
	UID          string `json:"uid"`
	DisplayName  string `json:"display_name,omitempty"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Account providers recognised on the user record.
const (
	ProviderDropbox = "dropbox"
	ProviderGoogle  = "google"
	ProviderGCS     = "gcs"
)

// User is a registered identity. The name is unique and immutable.
type User struct {
	Name            string                  `json:"name"`
	PublicKey       PublicKey               `json:"public_key"`
	Description     *string                 `json:"description,omitempty"`
	Email           string                  `json:"email,omitempty"`
	Fullname        string                  `json:"fullname,omitempty"`
	PasswordHash    string                  `json:"password_hash,omitempty"`
	PrivateKey      json.RawMessage         `json:"private_key,omitempty"`
	DropboxAccounts map[string]Account      `json:"dropbox_accounts,omitempty"`
	GoogleAccounts  map[string]Account      `json:"google_accounts,omitempty"`
	GCSAccounts     map[string]Account      `json:"gcs_accounts,omitempty"`
	LDAPDN          string                  `json:"ldap_dn,omitempty"`
	Emails          map[string]Confirmation `json:"emails,omitempty"`
}

// ID is the short stable identifier derived from the user's public key.
func (u User) ID() (string, error) {
	return u.PublicKey.ID()
}

// Accounts returns the linked accounts of the given provider.
func (u User) Accounts(provider string) map[string]Account {
	switch provider {
	case ProviderDropbox:
		return u.DropboxAccounts
	case ProviderGoogle:
		return u.GoogleAccounts
	case ProviderGCS:
		return u.GCSAccounts
	default:
		return nil
	}
}

// Passport grants a user membership of a network.
type Passport struct {
	User         PublicKey  `json:"user"`
	Network      string     `json:"network"`
	Signature    string     `json:"signature"`
	AllowWrite   bool       `json:"allow_write"`
	AllowStorage bool       `json:"allow_storage"`
	AllowSign    bool       `json:"allow_sign"`
	Certifier    *PublicKey `json:"certifier,omitempty"`
}

// Endpoints lists the addresses a node of a network listens on.
type Endpoints struct {
	Port      int      `json:"port"`
	Addresses []string `json:"addresses"`
}

// Statistics is the storage usage reported by a node.
type Statistics struct {
	Usage    int64 `json:"usage"`
	Capacity int64 `json:"capacity"`
}

// Add accumulates another report.
func (s Statistics) Add(o Statistics) Statistics {
	return Statistics{Usage: s.Usage + o.Usage, Capacity: s.Capacity + o.Capacity}
}

// Network is an overlay of nodes sharing storage.
type Network struct {
	Name           QualifiedName                    `json:"name"`
	Owner          PublicKey                        `json:"owner"`
	Consensus      json.RawMessage                  `json:"consensus,omitempty"`
	Overlay        json.RawMessage                  `json:"overlay,omitempty"`
	Version        string                           `json:"version,omitempty"`
	Passports      map[string]Passport              `json:"passports"`
	Endpoints      map[string]map[string]Endpoints  `json:"endpoints"`
	Storages       map[string]map[string]Statistics `json:"storages"`
	AdminKeys      json.RawMessage                  `json:"admin_keys,omitempty"`
	Peers          json.RawMessage                  `json:"peers,omitempty"`
	Description    *string                          `json:"description,omitempty"`
	EncryptOptions json.RawMessage                  `json:"encrypt_options,omitempty"`
}

// Statistics sums every node report of the network.
func (n Network) Statistics() Statistics {
	var total Statistics
	for _, nodes := range n.Storages {
		for _, s := range nodes {
			total = total.Add(s)
		}
	}
	return total
}

// Volume is a filesystem hosted on a network.
type Volume struct {
	Name               QualifiedName   `json:"name"`
	Network            string          `json:"network"`
	Owner              *PublicKey      `json:"owner,omitempty"`
	DefaultPermissions string          `json:"default_permissions"`
	MountOptions       json.RawMessage `json:"mount_options,omitempty"`
	Description        *string         `json:"description,omitempty"`
}

// InvitationStatus tracks an invitation from its creation to its
// acceptance.
type InvitationStatus string

// Invitation statuses.
const (
	InvitationPending InvitationStatus = "pending"
	InvitationOK      InvitationStatus = "ok"
)

// Invitation records the membership of a user in a drive.
type Invitation struct {
	Permissions string           `json:"permissions"`
	Status      InvitationStatus `json:"status"`
	CreateHome  bool             `json:"create_home"`
}

// Drive is a user-facing view of a volume shared with invited members.
// Members are keyed by user name or, for pending invitations of
// unregistered people, by email address.
type Drive struct {
	Name        QualifiedName         `json:"name"`
	Owner       string                `json:"owner"`
	Network     string                `json:"network"`
	Volume      string                `json:"volume"`
	Description *string               `json:"description,omitempty"`
	Users       map[string]Invitation `json:"users"`
}

// Invite registers key as a pending member whatever status invitation
// carries; only Confirm moves a member to ok. It reports false when the
// member is already pending.
func (d *Drive) Invite(key string, invitation Invitation) (bool, error) {
	if current, ok := d.Users[key]; ok {
		if current.Status == InvitationOK {
			return false, ErrAlreadyConfirmed
		}
		return false, nil
	}
	if d.Users == nil {
		d.Users = map[string]Invitation{}
	}
	invitation.Status = InvitationPending
	d.Users[key] = invitation
	return true, nil
}

// Confirm moves a pending member to ok. Confirming an unknown member fails
// with ErrNotInvited and confirming an accepted one with ErrAlreadyConfirmed.
func (d *Drive) Confirm(key string) (bool, error) {
	current, ok := d.Users[key]
	if !ok {
		return false, ErrNotInvited
	}
	if current.Status == InvitationOK {
		return false, ErrAlreadyConfirmed
	}
	current.Status = InvitationOK
	d.Users[key] = current
	return true, nil
}

// KeyValueStore is a key-value service hosted on a network.
type KeyValueStore struct {
	Name        QualifiedName `json:"name"`
	Network     string        `json:"network"`
	Owner       *PublicKey    `json:"owner,omitempty"`
	Description *string       `json:"description,omitempty"`
}

// PairingInformation is a short-lived encrypted blob a user parks on the hub
// to pair a new device. It is keyed by the owning user name.
type PairingInformation struct {
	Name           string          `json:"name"`
	PassphraseHash string          `json:"passphrase_hash"`
	Data           json.RawMessage `json:"data"`
	Expiration     time.Time       `json:"expiration"`
}

// Expired reports whether the record is past its expiration at now.
func (p PairingInformation) Expired(now time.Time) bool {
	return now.After(p.Expiration)
}
