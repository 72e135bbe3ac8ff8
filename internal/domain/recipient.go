package domain

import "strings"

// RoleClient is the role carried by recipients synthesized from client records
const RoleClient = "client"

// User is a staff member of the practice
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      string
	IsActive  bool
}

// Client is a client of the practice with optional portal notification opt-in
type Client struct {
	ID                 string
	Email              string
	FirstName          string
	LastName           string
	EmailNotifications bool
}

// Recipient is a resolved notification target
type Recipient interface {
	ID() string
	Email() string
	Name() string
	Role() string
	Eligible(channel Channel) bool
}

type staffRecipient struct {
	user User
}

// NewStaffRecipient wraps a staff user as a recipient
func NewStaffRecipient(u User) Recipient {
	return staffRecipient{user: u}
}

func (r staffRecipient) ID() string    { return r.user.ID }
func (r staffRecipient) Email() string { return strings.TrimSpace(r.user.Email) }
func (r staffRecipient) Role() string  { return r.user.Role }
func (r staffRecipient) Name() string  { return fullName(r.user.FirstName, r.user.LastName) }

func (r staffRecipient) Eligible(channel Channel) bool {
	switch channel {
	case ChannelInApp:
		return true
	case ChannelEmail:
		return r.Email() != ""
	}
	return false
}

type clientRecipient struct {
	client Client
}

// NewClientRecipient synthesizes a recipient from a client record.
// It refuses clients that have not opted into email notifications or have no usable email.
func NewClientRecipient(c Client) (Recipient, bool) {
	if !c.EmailNotifications || strings.TrimSpace(c.Email) == "" {
		return nil, false
	}
	return clientRecipient{client: c}, true
}

func (r clientRecipient) ID() string    { return r.client.ID }
func (r clientRecipient) Email() string { return strings.TrimSpace(r.client.Email) }
func (r clientRecipient) Role() string  { return RoleClient }
func (r clientRecipient) Name() string  { return fullName(r.client.FirstName, r.client.LastName) }

func (r clientRecipient) Eligible(channel Channel) bool {
	return channel.Valid()
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
