// Package index declares the collections of the hub together with their
// secondary indexes and update handlers.
package index

import (
	"encoding/json"
	"strconv"

	"peerhub/internal/docstore"
	"peerhub/pkg/domain"
)

// Collection names.
const (
	Users        = "users"
	DeletedUsers = "deleted_users"
	Networks     = "networks"
	Volumes      = "volumes"
	Drives       = "drives"
	KVS          = "kvs"
	Pairing      = "pairing"
)

// View names.
const (
	PerShortKeyHash = "per_short_key_hash"
	PerEmail        = "per_email"
	PerLDAPDN       = "per_ldap_dn"
	PerOwnerKey     = "per_owner_key"
	PerUserKey      = "per_user_key"
	PerInviteeName  = "per_invitee_name"
	PerNetworkID    = "per_network_id"
	PerVolumeID     = "per_volume_id"
	PerMemberName   = "per_member_name"
	Stats           = "stat_view"
)

// Update handler names.
const (
	// UpdateDiff merges a diff produced by domain.Schema.Diff.
	UpdateDiff = "update"
	// UpdateOverwrite replaces fields wholesale.
	UpdateOverwrite = "overwrite"
)

// Version is bumped whenever a map function changes.
const Version = 1

// Designs maps every collection to its design.
func Designs() map[string]docstore.Design {
	return map[string]docstore.Design{
		Users:        withSchema(domain.UserSchema, userViews()),
		DeletedUsers: {Version: Version},
		Networks:     withSchema(domain.NetworkSchema, networkViews()),
		Volumes:      withSchema(domain.VolumeSchema, ownedViews()),
		Drives:       withSchema(domain.DriveSchema, driveViews()),
		KVS:          withSchema(domain.KeyValueStoreSchema, ownedViews()),
		Pairing:      {Version: Version},
	}
}

func withSchema(schema domain.Schema, views map[string]docstore.View) docstore.Design {
	return docstore.Design{
		Version: Version,
		Views:   views,
		Updates: map[string]docstore.UpdateFunc{
			UpdateDiff: func(stored, args docstore.Document) (docstore.Document, error) {
				return schema.Merge(stored, args), nil
			},
			UpdateOverwrite: func(stored, args docstore.Document) (docstore.Document, error) {
				return schema.Replace(stored, args), nil
			},
		},
	}
}

func userViews() map[string]docstore.View {
	return map[string]docstore.View{
		PerShortKeyHash: {Map: func(doc docstore.Document, emit docstore.Emit) {
			if short, err := publicKey(doc["public_key"]).ShortHash(); err == nil {
				emit(short, doc)
			}
		}},
		PerEmail: {Map: func(doc docstore.Document, emit docstore.Emit) {
			emails, _ := doc["emails"].(map[string]any)
			for email := range emails {
				emit(email, doc)
			}
			if email, ok := doc["email"].(string); ok && email != "" {
				if _, listed := emails[email]; !listed {
					emit(email, doc)
				}
			}
		}},
		PerLDAPDN: {Map: func(doc docstore.Document, emit docstore.Emit) {
			if dn, ok := doc["ldap_dn"].(string); ok && dn != "" {
				emit(dn, doc)
			}
		}},
	}
}

func networkViews() map[string]docstore.View {
	return map[string]docstore.View{
		PerOwnerKey: {Map: func(doc docstore.Document, emit docstore.Emit) {
			if owner := publicKey(doc["owner"]); !owner.IsZero() {
				emit(owner.RSA, doc)
			}
		}},
		PerUserKey: {Map: func(doc docstore.Document, emit docstore.Emit) {
			seen := map[string]struct{}{}
			if owner := publicKey(doc["owner"]); !owner.IsZero() {
				seen[owner.RSA] = struct{}{}
				emit(owner.RSA, doc)
			}
			passports, _ := doc["passports"].(map[string]any)
			for _, p := range passports {
				passport, _ := p.(map[string]any)
				user := publicKey(passport["user"])
				if user.IsZero() {
					continue
				}
				if _, dup := seen[user.RSA]; dup {
					continue
				}
				seen[user.RSA] = struct{}{}
				emit(user.RSA, doc)
			}
		}},
		PerInviteeName: {Map: func(doc docstore.Document, emit docstore.Emit) {
			passports, _ := doc["passports"].(map[string]any)
			for invitee := range passports {
				emit(invitee, doc)
			}
		}},
		Stats: {
			Map: func(doc docstore.Document, emit docstore.Emit) {
				name, _ := doc["name"].(string)
				var total domain.Statistics
				storages, _ := doc["storages"].(map[string]any)
				for _, nodes := range storages {
					perNode, _ := nodes.(map[string]any)
					for _, s := range perNode {
						total = total.Add(statistics(s))
					}
				}
				emit(name, statisticsValue(total))
			},
			Reduce: SumStatistics,
		},
	}
}

func ownedViews() map[string]docstore.View {
	return map[string]docstore.View{
		PerNetworkID: {Map: func(doc docstore.Document, emit docstore.Emit) {
			if network, ok := doc["network"].(string); ok {
				emit(network, doc)
			}
		}},
		PerOwnerKey: {Map: func(doc docstore.Document, emit docstore.Emit) {
			if owner := publicKey(doc["owner"]); !owner.IsZero() {
				emit(owner.RSA, doc)
			}
		}},
	}
}

func driveViews() map[string]docstore.View {
	return map[string]docstore.View{
		PerMemberName: {Map: func(doc docstore.Document, emit docstore.Emit) {
			owner, _ := doc["owner"].(string)
			if owner != "" {
				emit(owner, doc)
			}
			users, _ := doc["users"].(map[string]any)
			for member := range users {
				if member != owner {
					emit(member, doc)
				}
			}
		}},
		PerNetworkID: {Map: func(doc docstore.Document, emit docstore.Emit) {
			if network, ok := doc["network"].(string); ok {
				emit(network, doc)
			}
		}},
		PerVolumeID: {Map: func(doc docstore.Document, emit docstore.Emit) {
			if volume, ok := doc["volume"].(string); ok {
				emit(volume, doc)
			}
		}},
	}
}

// SumStatistics reduces usage and capacity reports. It accepts both map
// values and previously reduced results.
func SumStatistics(values []any) any {
	var total domain.Statistics
	for _, v := range values {
		total = total.Add(statistics(v))
	}
	return statisticsValue(total)
}

// DecodeStatistics reads a reduced stat_view value.
func DecodeStatistics(v any) domain.Statistics {
	return statistics(v)
}

func statistics(v any) domain.Statistics {
	m, _ := v.(map[string]any)
	return domain.Statistics{Usage: integer(m["usage"]), Capacity: integer(m["capacity"])}
}

func statisticsValue(s domain.Statistics) map[string]any {
	return map[string]any{"usage": s.Usage, "capacity": s.Capacity}
}

func integer(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return int64(f)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

func publicKey(v any) domain.PublicKey {
	m, _ := v.(map[string]any)
	s, _ := m["rsa"].(string)
	return domain.PublicKey{RSA: s}
}
