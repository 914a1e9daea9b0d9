package domain

import "time"

// ProspectStatus is the outreach lifecycle state of a contact
type ProspectStatus string

const (
	ProspectPending   ProspectStatus = "pending"
	ProspectConnected ProspectStatus = "connected"
	ProspectRejected  ProspectStatus = "rejected"
	ProspectArchived  ProspectStatus = "archived"
	ProspectClosed    ProspectStatus = "closed"
)

// MaxRejections is the cumulative validation-rejection count at which a
// prospect is closed automatically.
const MaxRejections = 3

// Prospect is an external contact being pursued for outreach. The record
// itself is owned by the CRUD layer; the core consumes and gates on it.
type Prospect struct {
	ID             int64
	AccountID      int64
	Identifier     string // public identifier on the network
	AttendeeID     string // provider-side id used to match chats
	FirstName      string
	LastName       string
	Headline       string
	JobTitle       string
	Company        string
	AvatarURL      string
	Status         ProspectStatus
	AvatarMatch    *bool
	RejectionCount int
	ClosedReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Eligible reports whether the prospect may receive outreach:
// connected, not explicitly mismatched, and under the rejection cap.
func (p *Prospect) Eligible() bool {
	if p.Status != ProspectConnected {
		return false
	}
	if p.AvatarMatch != nil && !*p.AvatarMatch {
		return false
	}
	return p.RejectionCount < MaxRejections
}

// IneligibleReason names the first gate the prospect fails, for logs
func (p *Prospect) IneligibleReason() string {
	switch {
	case p.Status != ProspectConnected:
		return "status_" + string(p.Status)
	case p.AvatarMatch != nil && !*p.AvatarMatch:
		return "avatar_mismatch"
	case p.RejectionCount >= MaxRejections:
		return "too_many_rejections"
	}
	return ""
}

// Profile is the slice of prospect data passed to classifier and pipeline
type Profile struct {
	FirstName string
	LastName  string
	Headline  string
	JobTitle  string
	Company   string
}

// Profile extracts the pipeline-facing view of the prospect
func (p *Prospect) Profile() Profile {
	return Profile{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Headline:  p.Headline,
		JobTitle:  p.JobTitle,
		Company:   p.Company,
	}
}

// Message is one entry of a conversation with a prospect
type Message struct {
	ID         int64
	ProspectID int64
	AccountID  int64
	SentBy     Sender
	Content    string
	Kind       string // first_contact, followup, reply, manual
	ExternalID string // provider message id, used for sync dedup
	SentAt     time.Time
}

// Sender distinguishes our account from the prospect in a conversation
type Sender string

const (
	SentByAccount  Sender = "account"
	SentByProspect Sender = "prospect"
)
