// Package invitation exchanges a one-time invitation token for an
// authenticated session. Backend error shapes are translated into the
// autherr taxonomy here; nothing above this boundary sees them.
package invitation

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sitelink/go-client-auth/autherr"
	"github.com/sitelink/go-client-auth/clients"
	"github.com/sitelink/go-client-auth/session"
	"github.com/sitelink/go-client-auth/vault"
)

// Tokens are opaque, but a token that cannot possibly be valid is rejected
// locally so a use-once credential is never spent on a malformed input.
const (
	minTokenLength = 8
	maxTokenLength = 256
)

// Exchanger validates invitation tokens and materializes sessions.
type Exchanger struct {
	backend clients.Backend
	vault   *vault.Vault
	nowTime func() time.Time
	log     zerolog.Logger
}

// Option configures an Exchanger.
type Option func(*Exchanger)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(e *Exchanger) {
		e.nowTime = nowFunc
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Exchanger) {
		e.log = log
	}
}

// New initializes an Exchanger with required dependencies.
func New(backend clients.Backend, credentialVault *vault.Vault, options ...Option) (*Exchanger, error) {
	if backend == nil {
		return nil, errors.New("[invitation.New] backend is required")
	}
	if credentialVault == nil {
		return nil, errors.New("[invitation.New] vault is required")
	}
	e := &Exchanger{
		backend: backend,
		vault:   credentialVault,
		nowTime: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Exchange redeems token for a session. On success the remember-me artifact
// issued alongside the record is persisted, so a later launch restores the
// session without re-presenting the invitation link.
func (e *Exchanger) Exchange(ctx context.Context, token string) (*session.Session, error) {
	token = strings.TrimSpace(token)
	if !ValidTokenFormat(token) {
		return nil, autherr.TokenInvalidFormatErr
	}

	record, artifact, err := e.backend.ExchangeInvitationToken(ctx, token)
	if err != nil {
		return nil, translate(err)
	}
	if record.Disabled() {
		return nil, autherr.AccountDisabledErr
	}

	if err := e.vault.StoreArtifact(artifact); err != nil {
		// The session is valid either way; the next launch just needs the
		// invitation link again.
		e.log.Warn().Err(err).Msg("remember-me artifact not persisted")
	}

	e.log.Info().Str("client_id", record.ID).Msg("invitation exchanged")
	return session.New(*record, e.nowTime()), nil
}

// ValidTokenFormat reports whether token is plausibly a backend-issued
// invitation token: non-empty, URL-safe characters, bounded length.
func ValidTokenFormat(token string) bool {
	token = strings.TrimSpace(token)
	if len(token) < minTokenLength || len(token) > maxTokenLength {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func translate(err error) error {
	switch clients.Code(err) {
	case clients.CodeTokenNotFound:
		return autherr.TokenNotFoundErr
	case clients.CodeTokenConsumed:
		return autherr.TokenAlreadyUsedErr
	case clients.CodeAccountDisabled:
		return autherr.AccountDisabledErr
	case clients.CodeRecordNotFound:
		return autherr.TokenNotFoundErr
	default:
		return autherr.NetworkErr
	}
}
