package cloudobjects

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const storageKeyPrefix = "cloudobjects"

// tokenStore persists the credential envelope and the installation id in
// Storage under project-scoped keys. It is stateless beyond the keys: one
// live credential per project at a time.
type tokenStore struct {
	storage   Storage
	projectID string
}

func newTokenStore(storage Storage, projectID string) *tokenStore {
	return &tokenStore{storage: storage, projectID: projectID}
}

func (s *tokenStore) credentialKey() string {
	return storageKeyPrefix + "." + s.projectID + ".credential"
}

func (s *tokenStore) installationKey() string {
	return storageKeyPrefix + "." + s.projectID + ".installation"
}

// Load returns the stored credential, or (nil, nil) when none is stored.
func (s *tokenStore) Load(ctx context.Context) (*Credential, error) {
	raw, ok, err := s.storage.Get(ctx, s.credentialKey())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read stored credential")
	}
	if !ok {
		return nil, nil
	}

	cred := &Credential{}
	if err := json.Unmarshal([]byte(raw), cred); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "stored credential is corrupt")
	}
	return cred, nil
}

// Save overwrites the stored credential.
func (s *tokenStore) Save(ctx context.Context, cred *Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to serialize credential")
	}
	if err := s.storage.Set(ctx, s.credentialKey(), string(raw)); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist credential")
	}
	return nil
}

// Clear removes the stored credential.
func (s *tokenStore) Clear(ctx context.Context) error {
	if err := s.storage.Remove(ctx, s.credentialKey()); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear credential")
	}
	return nil
}

// InstallationID returns the stable per-installation id, generating and
// persisting one on first use.
func (s *tokenStore) InstallationID(ctx context.Context) (string, error) {
	id, ok, err := s.storage.Get(ctx, s.installationKey())
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read installation id")
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.New().String()
	if err := s.storage.Set(ctx, s.installationKey(), id); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to persist installation id")
	}
	return id, nil
}
