package social

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is the provider-side surface the engine drives. Implementations
// talk to the messaging provider's API; the engine never sees HTTP.
type Client interface {
	// SendMessage delivers a message into an existing chat
	SendMessage(ctx context.Context, chatID, text string) (messageID string, err error)
	// StartChat messages an attendee directly, creating the chat when
	// none exists yet
	StartChat(ctx context.Context, attendeeID, text string) (messageID string, err error)
	// SendConnectionRequest invites a profile to connect
	SendConnectionRequest(ctx context.Context, identifier, note string) error
	// ListConnections pages through accepted connections newest first
	ListConnections(ctx context.Context, since time.Time) ([]Connection, error)
	// ListUnreadChats returns chats with messages we have not read yet
	ListUnreadChats(ctx context.Context) ([]Chat, error)
	// ListMessages returns a chat's messages oldest first
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	// MarkRead clears the unread flag on a chat
	MarkRead(ctx context.Context, chatID string) error
	// GetProfile fetches a profile by public identifier
	GetProfile(ctx context.Context, identifier string) (Profile, error)
}

// Connection is an accepted connection as reported by the provider
type Connection struct {
	Identifier  string
	AttendeeID  string
	FirstName   string
	LastName    string
	Headline    string
	AvatarURL   string
	ConnectedAt time.Time
}

// Chat is a provider-side conversation
type Chat struct {
	ID         string
	AttendeeID string
	Unread     int
}

// Message is one provider-side chat message
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Text      string
	Timestamp time.Time
	FromSelf  bool
}

// Profile is the provider's view of a member profile
type Profile struct {
	Identifier string
	FirstName  string
	LastName   string
	Headline   string
	JobTitle   string
	Company    string
	AvatarURL  string
}

// Error kinds let callers decide between retrying, backing off and giving
// up without inspecting provider-specific payloads.
var (
	ErrRateLimited = errors.New("provider rate limited")
	ErrForbidden   = errors.New("provider forbade the action")
	ErrNotFound    = errors.New("provider resource not found")
	ErrTransient   = errors.New("transient provider failure")
)

// ClassifyStatus maps a provider HTTP status to an error kind, nil on 2xx
func ClassifyStatus(status int, op string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429:
		return fmt.Errorf("%s: %w", op, ErrRateLimited)
	case status == 401 || status == 403:
		return fmt.Errorf("%s: status %d: %w", op, status, ErrForbidden)
	case status == 404:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case status >= 500:
		return fmt.Errorf("%s: status %d: %w", op, status, ErrTransient)
	}
	return fmt.Errorf("%s: unexpected status %d", op, status)
}

// Retryable reports whether the operation is worth re-attempting later
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
