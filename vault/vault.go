// Package vault is the durable credential store for one device: a single-slot
// 4-digit PIN credential and an opaque remember-me artifact. The PIN is held
// only as a bcrypt hash scoped to one client ID; storing a PIN for a
// different client replaces the slot. Every read fails closed - a storage
// error is reported as "credential absent" so callers degrade to the login
// screen instead of retrying against broken storage.
package vault

import (
	stderrors "errors"
	"unicode"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sitelink/go-client-auth/autherr"
	"github.com/sitelink/go-client-auth/clients"
	"golang.org/x/crypto/bcrypt"
)

const (
	artifactKey    = "remember_me_artifact"
	pinHashKey     = "pin_hash"
	pinClientIDKey = "pin_client_id"
)

// Vault wraps a Storage collaborator with the credential semantics above.
type Vault struct {
	storage Storage
	log     zerolog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger the vault reports storage failures to.
func WithLogger(log zerolog.Logger) Option {
	return func(v *Vault) {
		v.log = log
	}
}

// New creates a Vault over the given storage collaborator.
func New(storage Storage, options ...Option) (*Vault, error) {
	if storage == nil {
		return nil, errors.New("[vault.New] storage is required")
	}
	v := &Vault{
		storage: storage,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(v)
	}
	return v, nil
}

// StoreArtifact persists the remember-me artifact. The write is durable; a
// later LoadArtifact after process restart returns the same value.
func (v *Vault) StoreArtifact(artifact clients.Artifact) error {
	if artifact == "" {
		return errors.New("[Vault.StoreArtifact] artifact is empty")
	}
	if err := v.storage.Set(artifactKey, string(artifact)); err != nil {
		return errors.Wrap(err, "[Vault.StoreArtifact] storage.Set")
	}
	return nil
}

// LoadArtifact returns the stored remember-me artifact. Absence and storage
// failure both report ok == false.
func (v *Vault) LoadArtifact() (clients.Artifact, bool) {
	value, err := v.storage.Get(artifactKey)
	if err != nil {
		if !stderrors.Is(err, ErrNotFound) {
			v.log.Warn().Err(err).Msg("artifact read failed, treating as absent")
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return clients.Artifact(value), true
}

// ClearArtifact removes the remember-me artifact, leaving any PIN in place.
// Used on logout.
func (v *Vault) ClearArtifact() error {
	if err := v.storage.Delete(artifactKey); err != nil {
		return errors.Wrap(err, "[Vault.ClearArtifact] storage.Delete")
	}
	return nil
}

// SetPIN stores the verifiable form of pin for clientID, replacing whatever
// the slot held before. The plaintext PIN is never written.
func (v *Vault) SetPIN(clientID, pin string) error {
	if clientID == "" {
		return errors.New("[Vault.SetPIN] clientID is required")
	}
	if !ValidPINFormat(pin) {
		return autherr.PINInvalidFormatErr
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "[Vault.SetPIN] bcrypt.GenerateFromPassword")
	}
	if err := v.storage.Set(pinHashKey, string(hash)); err != nil {
		return errors.Wrap(err, "[Vault.SetPIN] storage.Set hash")
	}
	if err := v.storage.Set(pinClientIDKey, clientID); err != nil {
		// Keep the slot consistent: a hash without an owner must not verify.
		_ = v.storage.Delete(pinHashKey)
		return errors.Wrap(err, "[Vault.SetPIN] storage.Set clientID")
	}
	return nil
}

// VerifyPIN compares pin against the stored verifiable form and returns the
// client ID the credential is scoped to. bcrypt performs the comparison; the
// plaintext PIN is never reconstructed from storage.
func (v *Vault) VerifyPIN(pin string) (string, error) {
	hash, err := v.storage.Get(pinHashKey)
	if err != nil {
		if !stderrors.Is(err, ErrNotFound) {
			v.log.Warn().Err(err).Msg("pin hash read failed, treating as absent")
		}
		return "", autherr.NoActivePINErr
	}
	clientID, err := v.storage.Get(pinClientIDKey)
	if err != nil || clientID == "" {
		return "", autherr.NoActivePINErr
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) != nil {
		return "", autherr.WrongPINErr
	}
	return clientID, nil
}

// HasPIN reports whether a PIN credential exists. Storage failure reads as
// "no PIN".
func (v *Vault) HasPIN() bool {
	value, err := v.storage.Get(pinHashKey)
	return err == nil && value != ""
}

// Clear erases the PIN credential and the remember-me artifact. Used on
// account deletion.
func (v *Vault) Clear() error {
	var firstErr error
	for _, key := range []string{artifactKey, pinHashKey, pinClientIDKey} {
		if err := v.storage.Delete(key); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "[Vault.Clear] storage.Delete %s", key)
		}
	}
	return firstErr
}

// ValidPINFormat reports whether pin is exactly 4 ASCII digits.
func ValidPINFormat(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) || r > '9' {
			return false
		}
	}
	return true
}
