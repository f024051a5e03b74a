// Package session owns the authentication state machine for the client app.
// A Store is the single source of truth for "who is signed in": every screen
// observes its published AuthState and no other component declares a login.
package session

import (
	"time"

	"github.com/sitelink/go-client-auth/clients"
)

// Session asserts that this device currently acts as one client. It is
// immutable once constructed; a refresh produces a new Session with a new
// record snapshot rather than mutating this one, so observers never read a
// half-updated record.
type Session struct {
	ClientID string         // Stable business-record identifier
	Client   clients.Client // Denormalized record snapshot at issue/refresh time
	IssuedAt time.Time
}

// New constructs a Session for the given record snapshot.
func New(client clients.Client, issuedAt time.Time) *Session {
	return &Session{
		ClientID: client.ID,
		Client:   client,
		IssuedAt: issuedAt,
	}
}

// WithClient returns a copy of the session carrying a fresh record snapshot.
// ClientID and IssuedAt are preserved.
func (s *Session) WithClient(client clients.Client) *Session {
	return &Session{
		ClientID: s.ClientID,
		Client:   client,
		IssuedAt: s.IssuedAt,
	}
}
