package domain

func emptyObject() any { return map[string]any{} }

func emptyList() any { return []any{} }

func constant(v any) func() any {
	return func() any { return v }
}

func defaultEncryptOptions() any {
	return map[string]any{
		"encrypt_at_rest":     true,
		"encrypt_rpc":         true,
		"validate_signatures": true,
	}
}

// UserSchema describes user records.
var UserSchema = Schema{
	Entity:   EntityUser,
	Identity: "name",
	Fields: []Field{
		{Name: "name", Required: true, Validate: NameValidator},
		{Name: "public_key", Required: true, Validate: PublicKeyValidator},
		{Name: "description", Validate: DescriptionValidator},
		{Name: "email", Validate: EmailValidator},
		{Name: "fullname"},
		{Name: "password_hash"},
		{Name: "private_key"},
		{Name: "dropbox_accounts", Kind: Map},
		{Name: "google_accounts", Kind: Map},
		{Name: "gcs_accounts", Kind: Map},
		{Name: "ldap_dn"},
		{Name: "emails", Kind: Map},
	},
}

// NetworkSchema describes network records.
var NetworkSchema = Schema{
	Entity:   EntityNetwork,
	Identity: "name",
	Fields: []Field{
		{Name: "name", Required: true, Validate: QualifiedNameValidator},
		{Name: "owner", Required: true, Validate: PublicKeyValidator},
		{Name: "consensus", Required: true},
		{Name: "overlay", Required: true},
		{Name: "version", Default: constant(DefaultNetworkVersion)},
		{Name: "passports", Kind: Map, Default: emptyObject},
		{Name: "endpoints", Kind: NestedMap, Default: emptyObject},
		{Name: "storages", Kind: NestedMap, Default: emptyObject},
		{Name: "admin_keys", Default: emptyObject},
		{Name: "peers", Default: emptyList},
		{Name: "description", Validate: DescriptionValidator},
		{Name: "encrypt_options", Default: defaultEncryptOptions},
	},
}

// PassportSchema describes passports embedded in networks.
var PassportSchema = Schema{
	Entity: EntityPassport,
	Fields: []Field{
		{Name: "user", Required: true, Validate: PublicKeyValidator},
		{Name: "network", Required: true, Validate: QualifiedNameValidator},
		{Name: "signature", Required: true},
		{Name: "allow_write", Default: constant(true)},
		{Name: "allow_storage", Default: constant(true)},
		{Name: "allow_sign", Default: constant(false)},
		{Name: "certifier", Validate: PublicKeyValidator},
	},
}

// EndpointsSchema describes the addresses published by a node.
var EndpointsSchema = Schema{
	Entity: EntityEndpoint,
	Fields: []Field{
		{Name: "port", Required: true},
		{Name: "addresses", Required: true},
	},
}

// VolumeSchema describes volume records.
var VolumeSchema = Schema{
	Entity:   EntityVolume,
	Identity: "name",
	Fields: []Field{
		{Name: "name", Required: true, Validate: QualifiedNameValidator},
		{Name: "network", Required: true, Validate: QualifiedNameValidator},
		{Name: "owner", Validate: PublicKeyValidator},
		{Name: "default_permissions", Default: constant("")},
		{Name: "mount_options", Default: emptyObject},
		{Name: "description", Validate: DescriptionValidator},
	},
}

// InvitationSchema describes drive invitations.
var InvitationSchema = Schema{
	Entity: EntityInvitation,
	Fields: []Field{
		{Name: "permissions", Required: true},
		{Name: "status", Default: constant(string(InvitationPending)), Validate: InvitationStatusValidator},
		{Name: "create_home", Default: constant(false)},
	},
}

// DriveSchema describes drive records.
var DriveSchema = Schema{
	Entity:   EntityDrive,
	Identity: "name",
	Fields: []Field{
		{Name: "name", Required: true, Validate: QualifiedNameValidator},
		{Name: "owner", Required: true, Validate: NameValidator},
		{Name: "network", Required: true, Validate: QualifiedNameValidator},
		{Name: "volume", Required: true, Validate: QualifiedNameValidator},
		{Name: "description", Validate: DescriptionValidator},
		{Name: "users", Kind: Map, Default: emptyObject},
	},
}

// KeyValueStoreSchema describes key-value store records.
var KeyValueStoreSchema = Schema{
	Entity:   EntityKeyValueStore,
	Identity: "name",
	Fields: []Field{
		{Name: "name", Required: true, Validate: QualifiedNameValidator},
		{Name: "network", Required: true, Validate: QualifiedNameValidator},
		{Name: "owner", Validate: PublicKeyValidator},
		{Name: "description", Validate: DescriptionValidator},
	},
}

// PairingSchema describes pairing records.
var PairingSchema = Schema{
	Entity:   EntityPairing,
	Identity: "name",
	Fields: []Field{
		{Name: "name", Required: true, Validate: NameValidator},
		{Name: "passphrase_hash", Required: true},
		{Name: "data", Required: true},
		{Name: "expiration", Required: true},
	},
}
