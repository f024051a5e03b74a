package clients

import "time"

// Status reflects whether the backend still allows this client to sign in.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// InvitationStatus tracks whether the client has accepted their invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
)

// Client is the denormalized snapshot of a client record as the backend
// returns it. The identity subsystem never mutates a Client; refreshing a
// session replaces the whole snapshot.
type Client struct {
	ID               string           `json:"id,omitempty"`         // Stable business-record identifier
	FirstName        string           `json:"first_name,omitempty"` // First name of the client
	LastName         string           `json:"last_name,omitempty"`  // Last name of the client
	Email            string           `json:"email,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	Status           Status           `json:"status,omitempty"`            // active / disabled
	ProjectName      string           `json:"project_name,omitempty"`      // Assigned construction project
	SiteLocation     string           `json:"site_location,omitempty"`     // Build site address
	InvitationStatus InvitationStatus `json:"invitation_status,omitempty"` // pending / accepted
	AcceptedAt       *time.Time       `json:"accepted_at,omitempty"`       // When the invitation was accepted
}

// FullName returns the display name for the client.
func (c Client) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Disabled reports whether the backend has blocked this client.
func (c Client) Disabled() bool {
	return c.Status == StatusDisabled
}
