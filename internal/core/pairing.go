package core

import (
	"context"
	"encoding/json"
	"errors"

	"peerhub/internal/docstore"
	"peerhub/pkg/domain"
)

// PutPairing parks data for name until the pairing lifetime elapses,
// replacing any previous record.
func (s *Service) PutPairing(ctx context.Context, name, passphraseHash string, data json.RawMessage) (domain.PairingInformation, error) {
	p := domain.PairingInformation{
		Name:           name,
		PassphraseHash: passphraseHash,
		Data:           data,
		Expiration:     s.now().Add(s.settings.PairingTTL).UTC(),
	}
	doc, err := domain.ToDocument(p)
	if err != nil {
		return domain.PairingInformation{}, domain.InvalidFormatError{Entity: domain.EntityPairing, Field: "data", Reason: err.Error()}
	}
	if field, missing := domain.PairingSchema.Missing(doc); missing {
		return domain.PairingInformation{}, domain.MissingFieldError{Entity: domain.EntityPairing, Field: field}
	}
	if err := domain.PairingSchema.Check(doc); err != nil {
		return domain.PairingInformation{}, err
	}
	if err := s.pairing.Put(ctx, name, doc); err != nil {
		return domain.PairingInformation{}, err
	}
	return p, nil
}

// GetPairing returns the pairing record of name and consumes it. A wrong
// passphrase hash leaves the record in place. An expired record is
// consumed and reported as ErrNoLongerAvailable. Of several concurrent
// callers at most one receives the record; the others get NotFoundError.
func (s *Service) GetPairing(ctx context.Context, name, passphraseHash string) (domain.PairingInformation, error) {
	p, err := s.loadPairing(ctx, name)
	if err != nil {
		return domain.PairingInformation{}, err
	}
	if p.PassphraseHash != passphraseHash {
		return domain.PairingInformation{}, domain.ErrPassphraseMismatch
	}
	// Delete is atomic in every backend: only one concurrent reader wins it.
	if err := s.pairing.Delete(ctx, name); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.PairingInformation{}, domain.NotFoundError{Entity: domain.EntityPairing, Name: name}
		}
		return domain.PairingInformation{}, err
	}
	if p.Expired(s.now()) {
		return domain.PairingInformation{}, domain.ErrNoLongerAvailable
	}
	return p, nil
}

// PairingStatus reports whether a live pairing record exists for name
// without consuming it.
func (s *Service) PairingStatus(ctx context.Context, name string) error {
	p, err := s.loadPairing(ctx, name)
	if err != nil {
		return err
	}
	if p.Expired(s.now()) {
		return domain.ErrNoLongerAvailable
	}
	return nil
}

// DeletePairing drops the pairing record of name.
func (s *Service) DeletePairing(ctx context.Context, name string) error {
	err := s.pairing.Delete(ctx, name)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.NotFoundError{Entity: domain.EntityPairing, Name: name}
	}
	return err
}

func (s *Service) loadPairing(ctx context.Context, name string) (domain.PairingInformation, error) {
	doc, err := s.pairing.Get(ctx, name)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.PairingInformation{}, domain.NotFoundError{Entity: domain.EntityPairing, Name: name}
	}
	if err != nil {
		return domain.PairingInformation{}, err
	}
	var p domain.PairingInformation
	if err := domain.FromDocument(doc, &p); err != nil {
		return domain.PairingInformation{}, err
	}
	return p, nil
}
