// Package pinauth restores a persisted session from a locally verified PIN.
// The PIN never authenticates to the backend; it only unlocks the stored
// remember-me artifact, which does.
package pinauth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sitelink/go-client-auth/autherr"
	"github.com/sitelink/go-client-auth/clients"
	"github.com/sitelink/go-client-auth/session"
	"github.com/sitelink/go-client-auth/vault"
)

// Authenticator verifies PINs against the vault and rebuilds sessions.
type Authenticator struct {
	backend clients.Backend
	vault   *vault.Vault
	nowTime func() time.Time
	log     zerolog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(a *Authenticator) {
		a.nowTime = nowFunc
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Authenticator) {
		a.log = log
	}
}

// New initializes an Authenticator with required dependencies.
func New(backend clients.Backend, credentialVault *vault.Vault, options ...Option) (*Authenticator, error) {
	if backend == nil {
		return nil, errors.New("[pinauth.New] backend is required")
	}
	if credentialVault == nil {
		return nil, errors.New("[pinauth.New] vault is required")
	}
	a := &Authenticator{
		backend: backend,
		vault:   credentialVault,
		nowTime: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

// Login verifies pin and restores the session the PIN was created for. A
// non-4-digit input is rejected before the vault is touched. The restored
// session is guaranteed to carry the same client ID the PIN is scoped to; an
// artifact bound to anyone else is refused rather than silently switching
// identities.
func (a *Authenticator) Login(ctx context.Context, pin string) (*session.Session, error) {
	if !vault.ValidPINFormat(pin) {
		return nil, autherr.PINInvalidFormatErr
	}

	clientID, err := a.vault.VerifyPIN(pin)
	if err != nil {
		return nil, err
	}

	artifact, ok := a.vault.LoadArtifact()
	if !ok {
		// Logout cleared the artifact but kept the PIN. There is nothing
		// left to unlock; a fresh invitation link is the recovery path.
		return nil, autherr.NoActiveSessionErr
	}

	signedInID, err := a.backend.SignInWithArtifact(ctx, artifact)
	if err != nil {
		return nil, translate(err)
	}
	if signedInID != clientID {
		a.log.Warn().
			Str("pin_client_id", clientID).
			Str("artifact_client_id", signedInID).
			Msg("artifact bound to a different client than the pin")
		return nil, autherr.NoActiveSessionErr
	}

	record, err := a.backend.GetClientRecord(ctx, clientID)
	if err != nil {
		return nil, translate(err)
	}
	if record.Disabled() {
		return nil, autherr.AccountDisabledErr
	}

	return session.New(*record, a.nowTime()), nil
}

func translate(err error) error {
	switch clients.Code(err) {
	case clients.CodeAccountDisabled:
		return autherr.AccountDisabledErr
	case clients.CodeInvalidArtifact, clients.CodeRecordNotFound:
		return autherr.NoActiveSessionErr
	default:
		return autherr.NetworkErr
	}
}
