package core

import "peerhub/pkg/domain"

type (
	EntityType         = domain.EntityType
	User               = domain.User
	Network            = domain.Network
	Passport           = domain.Passport
	Endpoints          = domain.Endpoints
	Statistics         = domain.Statistics
	Volume             = domain.Volume
	Drive              = domain.Drive
	Invitation         = domain.Invitation
	KeyValueStore      = domain.KeyValueStore
	PairingInformation = domain.PairingInformation
	QualifiedName      = domain.QualifiedName
	PublicKey          = domain.PublicKey
	NotFoundError      = domain.NotFoundError
	DuplicateError     = domain.DuplicateError
)

const (
	EntityUser          = domain.EntityUser
	EntityNetwork       = domain.EntityNetwork
	EntityPassport      = domain.EntityPassport
	EntityVolume        = domain.EntityVolume
	EntityDrive         = domain.EntityDrive
	EntityInvitation    = domain.EntityInvitation
	EntityKeyValueStore = domain.EntityKeyValueStore
	EntityPairing       = domain.EntityPairing
	EntityEndpoint      = domain.EntityEndpoint
)
