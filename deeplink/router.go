// Package deeplink classifies inbound application URLs. Invitation links are
// forwarded to the navigation collaborator; everything else is logged and
// dropped. Links that arrive while the silent restore is still in flight are
// queued behind it so the user never sees two competing auth prompts.
package deeplink

import (
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sitelink/go-client-auth/session"
)

const tokenParam = "token"

// Navigator is the screen/navigation collaborator. NavigateToInvitation is
// expected to present the screen that invokes the invitation exchange.
type Navigator interface {
	NavigateToInvitation(token string)
}

// AuthStateSource is the slice of the session store the router depends on.
type AuthStateSource interface {
	Snapshot() session.AuthState
	Subscribe(fn func(session.AuthState)) func()
}

// Router parses deep links and forwards invitation tokens. Cold-start and
// warm deliveries go through the same Handle path.
type Router struct {
	scheme string
	host   string
	store  AuthStateSource
	nav    Navigator
	log    zerolog.Logger

	mu      sync.Mutex
	pending []string
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) {
		r.log = log
	}
}

// New initializes a Router for links of the form scheme://host?token=...
// and subscribes to the store so tokens queued during a restore are flushed
// the moment it resolves.
func New(scheme, host string, store AuthStateSource, nav Navigator, options ...Option) (*Router, error) {
	if scheme == "" || host == "" {
		return nil, errors.New("[deeplink.New] scheme and host are required")
	}
	if store == nil {
		return nil, errors.New("[deeplink.New] store is required")
	}
	if nav == nil {
		return nil, errors.New("[deeplink.New] navigator is required")
	}
	r := &Router{
		scheme: scheme,
		host:   host,
		store:  store,
		nav:    nav,
		log:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	store.Subscribe(r.onAuthState)
	return r, nil
}

// HandleInitial processes the URL the process was launched with, if any.
// An empty rawURL means the app was not opened from a link.
func (r *Router) HandleInitial(rawURL string) {
	if rawURL == "" {
		return
	}
	r.Handle(rawURL)
}

// Handle processes one inbound URL. Unrecognized links are not an error the
// user sees; they are logged at debug and dropped.
func (r *Router) Handle(rawURL string) {
	token, ok := r.invitationToken(rawURL)
	if !ok {
		r.log.Debug().Str("url", rawURL).Msg("unrecognized deep link dropped")
		return
	}

	r.mu.Lock()
	if r.store.Snapshot().State == session.Restoring {
		// Queue behind the in-flight restore; onAuthState flushes.
		r.pending = append(r.pending, token)
		r.mu.Unlock()
		r.log.Debug().Msg("invitation link queued behind restore")
		return
	}
	r.mu.Unlock()

	r.nav.NavigateToInvitation(token)
}

func (r *Router) onAuthState(state session.AuthState) {
	if state.State == session.Restoring {
		return
	}

	r.mu.Lock()
	queued := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, token := range queued {
		r.nav.NavigateToInvitation(token)
	}
}

// invitationToken extracts the token parameter from an invitation link.
func (r *Router) invitationToken(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != r.scheme || parsed.Host != r.host {
		return "", false
	}
	token := parsed.Query().Get(tokenParam)
	if token == "" {
		return "", false
	}
	return token, true
}
