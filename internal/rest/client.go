package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

// Client talks to the REST side of the messaging collaborator: contacts,
// the conversation snapshot, per-partner history and read receipts.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  log.With().Str("component", "rest_client").Logger(),
	}
}

func (c *Client) Contacts(ctx context.Context) ([]chat.Contact, error) {
	var out []chat.Contact
	if err := c.getJSON(ctx, "/api/contacts", &out); err != nil {
		return nil, errors.Wrap(err, "fetch contacts")
	}
	return out, nil
}

// Snapshot returns {lastMessage, unreadCount} per partner with at least one
// message. It is fetched exactly once per session and seeds the
// conversation store.
func (c *Client) Snapshot(ctx context.Context) ([]chat.ConversationSummary, error) {
	var out []chat.ConversationSummary
	if err := c.getJSON(ctx, "/api/conversations", &out); err != nil {
		return nil, errors.Wrap(chat.ErrSnapshotFetch, err.Error())
	}
	return out, nil
}

// History returns the full message list for one partner in server order.
func (c *Client) History(ctx context.Context, partnerID string) ([]chat.Message, error) {
	var out []chat.Message
	if err := c.getJSON(ctx, "/api/conversations/"+partnerID+"/messages", &out); err != nil {
		return nil, errors.Wrap(chat.ErrHistoryFetch, err.Error())
	}
	return out, nil
}

// MarkRead marks one message read. Idempotent on the server; safe to call
// fire-and-forget.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/api/messages/"+messageID+"/read", nil, nil)
}

// SendMessage posts one message over REST. Used by the polling transport
// strategy; the push strategy sends over the socket instead.
func (c *Client) SendMessage(ctx context.Context, to, content string, kind chat.MessageKind, clientRef string) (*chat.Message, error) {
	body := chat.Frame{Type: chat.FrameSend, To: to, Content: content, Kind: kind, ClientRef: clientRef}
	var out chat.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", &body, &out); err != nil {
		return nil, errors.Wrap(err, "send message")
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("request failed")
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
