package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const relationPageSize = 100

// UnipileClient implements Client over the Unipile REST API. All calls
// carry the account id; pagination follows the cursor the API returns.
type UnipileClient struct {
	baseURL   string
	apiKey    string
	accountID string
	client    *http.Client
}

// NewUnipileClient creates a client for one provider account. dsn is the
// Unipile host, with or without the https scheme.
func NewUnipileClient(dsn, apiKey, accountID string) *UnipileClient {
	base := strings.TrimSuffix(dsn, "/")
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	return &UnipileClient{
		baseURL:   base,
		apiKey:    apiKey,
		accountID: accountID,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *UnipileClient) request(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, ErrTransient)
	}
	defer resp.Body.Close()

	if err := ClassifyStatus(resp.StatusCode, method+" "+path); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

func (c *UnipileClient) params() url.Values {
	v := url.Values{}
	v.Set("account_id", c.accountID)
	return v
}

type relationItem struct {
	MemberID          string `json:"member_id"`
	PublicIdentifier  string `json:"public_identifier"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Headline          string `json:"headline"`
	ProfilePictureURL string `json:"profile_picture_url"`
	CreatedAt         int64  `json:"created_at"` // unix millis
}

type relationsPage struct {
	Items  []relationItem `json:"items"`
	Cursor string         `json:"cursor"`
}

// ListConnections pages through accepted connections, newest first, and
// stops at the first one older than since.
func (c *UnipileClient) ListConnections(ctx context.Context, since time.Time) ([]Connection, error) {
	var out []Connection
	cursor := ""
	for {
		params := c.params()
		params.Set("limit", fmt.Sprint(relationPageSize))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page relationsPage
		if err := c.request(ctx, http.MethodGet, "/api/v1/users/relations", params, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			connectedAt := time.UnixMilli(item.CreatedAt).UTC()
			if !since.IsZero() && connectedAt.Before(since) {
				return out, nil
			}
			out = append(out, Connection{
				Identifier:  item.PublicIdentifier,
				AttendeeID:  item.MemberID,
				FirstName:   item.FirstName,
				LastName:    item.LastName,
				Headline:    item.Headline,
				AvatarURL:   item.ProfilePictureURL,
				ConnectedAt: connectedAt,
			})
		}

		if page.Cursor == "" || len(page.Items) == 0 {
			return out, nil
		}
		cursor = page.Cursor
	}
}

type chatItem struct {
	ID                 string `json:"id"`
	AttendeeProviderID string `json:"attendee_provider_id"`
	UnreadCount        int    `json:"unread_count"`
}

type chatsPage struct {
	Items  []chatItem `json:"items"`
	Cursor string     `json:"cursor"`
}

// ListUnreadChats returns chats carrying unread messages
func (c *UnipileClient) ListUnreadChats(ctx context.Context) ([]Chat, error) {
	params := c.params()
	params.Set("unread", "true")

	var page chatsPage
	if err := c.request(ctx, http.MethodGet, "/api/v1/chats", params, nil, &page); err != nil {
		return nil, err
	}

	out := make([]Chat, 0, len(page.Items))
	for _, item := range page.Items {
		if item.UnreadCount == 0 {
			continue
		}
		out = append(out, Chat{
			ID:         item.ID,
			AttendeeID: item.AttendeeProviderID,
			Unread:     item.UnreadCount,
		})
	}
	return out, nil
}

type messageItem struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	IsSender  int    `json:"is_sender"`
}

type messagesPage struct {
	Items []messageItem `json:"items"`
}

// ListMessages returns a chat's messages oldest first
func (c *UnipileClient) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var page messagesPage
	err := c.request(ctx, http.MethodGet, "/api/v1/chats/"+url.PathEscape(chatID)+"/messages",
		c.params(), nil, &page)
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(page.Items))
	for _, item := range page.Items {
		ts, _ := time.Parse(time.RFC3339, item.Timestamp)
		out = append(out, Message{
			ID:        item.ID,
			ChatID:    item.ChatID,
			SenderID:  item.SenderID,
			Text:      item.Text,
			Timestamp: ts,
			FromSelf:  item.IsSender == 1,
		})
	}
	// the API returns newest first
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// SendMessage delivers a message into an existing chat
func (c *UnipileClient) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	var resp struct {
		MessageID string `json:"message_id"`
	}
	err := c.request(ctx, http.MethodPost, "/api/v1/chats/"+url.PathEscape(chatID)+"/messages",
		c.params(), map[string]string{"text": text}, &resp)
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// StartChat messages an attendee by provider id. The API reuses the
// existing chat with that attendee when there is one.
func (c *UnipileClient) StartChat(ctx context.Context, attendeeID, text string) (string, error) {
	var resp struct {
		MessageID string `json:"message_id"`
	}
	body := map[string]interface{}{
		"account_id":    c.accountID,
		"attendees_ids": []string{attendeeID},
		"text":          text,
	}
	if err := c.request(ctx, http.MethodPost, "/api/v1/chats", nil, body, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// MarkRead clears the unread flag on a chat
func (c *UnipileClient) MarkRead(ctx context.Context, chatID string) error {
	body := map[string]interface{}{"action": "setReadStatus", "value": true}
	return c.request(ctx, http.MethodPatch, "/api/v1/chats/"+url.PathEscape(chatID),
		c.params(), body, nil)
}

type userProfile struct {
	PublicIdentifier  string `json:"public_identifier"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Headline          string `json:"headline"`
	Occupation        string `json:"occupation"`
	Company           string `json:"company"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// GetProfile fetches a profile by public identifier
func (c *UnipileClient) GetProfile(ctx context.Context, identifier string) (Profile, error) {
	var p userProfile
	err := c.request(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(identifier),
		c.params(), nil, &p)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Identifier: p.PublicIdentifier,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Headline:   p.Headline,
		JobTitle:   p.Occupation,
		Company:    p.Company,
		AvatarURL:  p.ProfilePictureURL,
	}, nil
}

// SendConnectionRequest invites a profile to connect
func (c *UnipileClient) SendConnectionRequest(ctx context.Context, identifier, note string) error {
	body := map[string]string{
		"account_id":  c.accountID,
		"provider_id": identifier,
	}
	if note != "" {
		body["message"] = note
	}
	return c.request(ctx, http.MethodPost, "/api/v1/users/invite", nil, body, nil)
}
