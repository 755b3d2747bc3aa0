package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/inboxmirror/inboxd/internal/retry"
	"golang.org/x/time/rate"
)

// Client talks to the upstream messaging-provider API. Calls are paced by a
// shared rate limiter so backfill loops respect upstream limits, and transient
// failures are retried with bounded backoff.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	retry   retry.Config
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	Token         string
	RatePerSecond float64
	// Retry overrides the default backoff config when MaxAttempts > 0.
	Retry retry.Config
}

// NewClient creates a provider API client.
func NewClient(opts Options) *Client {
	rps := opts.RatePerSecond
	if rps <= 0 {
		rps = 4
	}
	cfg := opts.Retry
	if cfg.MaxAttempts <= 0 {
		cfg = retry.DefaultConfig()
	}
	return &Client{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   cfg,
	}
}

// TestConnectivity probes the upstream account. Any failure is returned as a
// ConnectivityError, which is fatal to the backfill run that issued it.
func (c *Client) TestConnectivity(ctx context.Context, accountID string) error {
	var out struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/status", url.PathEscape(accountID))
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return &ConnectivityError{AccountID: accountID, Err: err}
	}
	if out.Status == "error" || out.Status == "credentials" {
		return &ConnectivityError{AccountID: accountID, Err: fmt.Errorf("account status %q", out.Status)}
	}
	return nil
}

// ListChats fetches one page of chats for an account. An empty returned
// cursor means the listing is exhausted.
func (c *Client) ListChats(ctx context.Context, accountID, cursor string, limit int) (*ChatPage, error) {
	var out listResponse
	path := fmt.Sprintf("/v1/accounts/%s/chats", url.PathEscape(accountID))
	if err := c.getJSON(ctx, path, pageQuery(cursor, limit), &out); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	page := &ChatPage{Cursor: out.Cursor}
	for _, raw := range out.Items {
		chat, err := ParseChat(raw)
		if err != nil || chat.ExternalID == "" {
			continue
		}
		page.Chats = append(page.Chats, chat)
	}
	return page, nil
}

// ListChatAttendees fetches a chat's attendees, up to limit.
func (c *Client) ListChatAttendees(ctx context.Context, chatID, accountID string, limit int) ([]Attendee, error) {
	var out listResponse
	path := fmt.Sprintf("/v1/chats/%s/attendees", url.PathEscape(chatID))
	q := pageQuery("", limit)
	q.Set("account_id", accountID)
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}

	var attendees []Attendee
	for _, raw := range out.Items {
		a, err := ParseAttendee(raw)
		if err != nil || a.ExternalID == "" {
			continue
		}
		attendees = append(attendees, a)
	}
	return attendees, nil
}

// ListChatMessages fetches one page of a chat's messages.
func (c *Client) ListChatMessages(ctx context.Context, chatID, accountID, cursor string, limit int) (*MessagePage, error) {
	var out listResponse
	path := fmt.Sprintf("/v1/chats/%s/messages", url.PathEscape(chatID))
	q := pageQuery(cursor, limit)
	q.Set("account_id", accountID)
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	page := &MessagePage{Cursor: out.Cursor}
	for _, raw := range out.Items {
		msg, err := ParseMessage(raw)
		if err != nil || msg.ExternalID == "" {
			continue
		}
		page.Messages = append(page.Messages, msg)
	}
	return page, nil
}

// GetMessageAttachment downloads one attachment's content.
func (c *Client) GetMessageAttachment(ctx context.Context, messageID, attachmentID, accountID string) (*AttachmentContent, error) {
	var out struct {
		ContentBase64 string `json:"content_base64"`
		MimeType      string `json:"mime_type"`
	}
	path := fmt.Sprintf("/v1/messages/%s/attachments/%s",
		url.PathEscape(messageID), url.PathEscape(attachmentID))
	q := url.Values{}
	q.Set("account_id", accountID)
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(out.ContentBase64)
	if err != nil {
		return nil, fmt.Errorf("decode attachment content: %w", err)
	}
	return &AttachmentContent{Data: data, MimeType: out.MimeType}, nil
}

// GetProfile fetches the detailed profile of one external identity.
func (c *Client) GetProfile(ctx context.Context, identity, accountID string) (*Profile, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/v1/profiles/%s", url.PathEscape(identity))
	q := url.Values{}
	q.Set("account_id", accountID)
	if err := c.getJSON(ctx, path, q, &raw); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p, err := ParseProfile(raw)
	if err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

// GetOwnProfile fetches the profile of the account owner.
func (c *Client) GetOwnProfile(ctx context.Context, accountID string) (*Profile, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/v1/accounts/%s/profile", url.PathEscape(accountID))
	if err := c.getJSON(ctx, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("get own profile: %w", err)
	}
	p, err := ParseProfile(raw)
	if err != nil {
		return nil, fmt.Errorf("parse own profile: %w", err)
	}
	return &p, nil
}

type listResponse struct {
	Items  []json.RawMessage `json:"items"`
	Cursor string            `json:"cursor"`
}

func pageQuery(cursor string, limit int) url.Values {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Code, e.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return retry.DoWithConfig(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &statusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
		}
		return json.Unmarshal(body, out)
	})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
