// Package api is the typed REST surface of the backend, built on the
// transport wrapper. Paths here are the single place the endpoint
// layout is spelled out.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/peopledesk/peopledesk/internal/client/auth"
	"github.com/peopledesk/peopledesk/internal/client/chat"
	"github.com/peopledesk/peopledesk/internal/client/transport"
)

const (
	LoginPath       = "/api/auth/login"
	LogoutPath      = "/api/auth/logout"
	SessionPath     = "/api/auth/session"
	SidebarPath     = "/api/chat/sidebar"
	MessagesPath    = "/api/chat/messages"
	ReadPath        = "/api/chat/read"
	NotifCountsPath = "/api/notifications/counts"
	NotifReadPath   = "/api/notifications/read-all"
)

type Client struct {
	t     *transport.Client
	creds *auth.Store
	base  string
}

func New(t *transport.Client, creds *auth.Store, baseURL string) *Client {
	return &Client{t: t, creds: creds, base: baseURL}
}

type LoginResult struct {
	Token string        `json:"token"`
	User  *auth.Profile `json:"user"`
}

// Login authenticates and stores the returned credential and profile.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.t.CallJSON(ctx, http.MethodPost, c.base+LoginPath, &out,
		transport.WithBody(map[string]string{"email": email, "password": password}),
		transport.WithoutAuth(),
	)
	if err != nil {
		return nil, err
	}
	c.creds.SetToken(out.Token)
	c.creds.SetProfile(out.User)
	return &out, nil
}

// Logout tells the backend and clears local state. The credential is
// cleared even when the request fails: a dead session on the server
// must not keep the client signed in.
func (c *Client) Logout(ctx context.Context) error {
	err := c.t.CallJSON(ctx, http.MethodPost, c.base+LogoutPath, nil)
	c.creds.Clear()
	return err
}

// SessionStatus validates the current credential. A nil error means
// the session is still good.
func (c *Client) SessionStatus(ctx context.Context) error {
	return c.t.CallJSON(ctx, http.MethodGet, c.base+SessionPath, nil,
		transport.WithoutSessionGuard())
}

// Sidebar fetches the conversation summaries, most recent first.
func (c *Client) Sidebar(ctx context.Context) ([]chat.ConversationSummary, error) {
	var out []chat.ConversationSummary
	if err := c.t.CallJSON(ctx, http.MethodGet, c.base+SidebarPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches the full message history with otherID, oldest
// first.
func (c *Client) History(ctx context.Context, otherID int) ([]chat.Message, error) {
	var out []chat.Message
	url := fmt.Sprintf("%s%s/%d", c.base, MessagesPath, otherID)
	if err := c.t.CallJSON(ctx, http.MethodGet, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead marks the conversation with otherID as read and returns
// the number of messages affected.
func (c *Client) MarkRead(ctx context.Context, otherID int) (int, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	url := fmt.Sprintf("%s%s/%d", c.base, ReadPath, otherID)
	if err := c.t.CallJSON(ctx, http.MethodPut, url, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// NotificationCounts fetches the per-category unread counts.
func (c *Client) NotificationCounts(ctx context.Context) (map[string]int, error) {
	var out map[string]int
	if err := c.t.CallJSON(ctx, http.MethodGet, c.base+NotifCountsPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkAllNotificationsRead zeroes every category on the backend.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.t.CallJSON(ctx, http.MethodPut, c.base+NotifReadPath, nil)
}
