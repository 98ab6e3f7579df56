// Package client provides a Go client for the message board HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/heihuo000/message-board-system/internal/models"
)

// Client is a message board API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for the board at baseURL. The underlying HTTP
// client carries no global timeout because Wait holds a response open;
// bound individual calls with a context deadline instead.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
	}
}

// doRequest performs an HTTP request and decodes error envelopes.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("board error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// SendRequest is the request body for posting a message.
type SendRequest struct {
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

// SendResponse is the response from posting a message.
type SendResponse struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// Send posts a message to the board.
func (c *Client) Send(ctx context.Context, sender, content, priority, replyTo string) (*SendResponse, error) {
	body, _ := json.Marshal(SendRequest{
		Sender:   sender,
		Content:  content,
		Priority: priority,
		ReplyTo:  replyTo,
	})

	respBody, err := c.doRequest(ctx, "POST", "/messages", body)
	if err != nil {
		return nil, err
	}

	var resp SendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MessagesResponse is the response from listing messages.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
	Count    int              `json:"count"`
}

// MessagesOptions narrows a Messages call. Zero values mean no constraint.
type MessagesOptions struct {
	UnreadOnly    bool
	Sender        string
	ExcludeSender string
	After         int64
	Limit         int
}

// Messages lists board messages.
func (c *Client) Messages(ctx context.Context, opts MessagesOptions) (*MessagesResponse, error) {
	q := url.Values{}
	if opts.UnreadOnly {
		q.Set("unread", "true")
	}
	if opts.Sender != "" {
		q.Set("sender", opts.Sender)
	}
	if opts.ExcludeSender != "" {
		q.Set("exclude_sender", opts.ExcludeSender)
	}
	if opts.After > 0 {
		q.Set("after", strconv.FormatInt(opts.After, 10))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	respBody, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead flags the given message ids as read and returns how many rows
// actually flipped.
func (c *Client) MarkRead(ctx context.Context, ids []string) (int64, error) {
	body, _ := json.Marshal(map[string]interface{}{"ids": ids})
	return c.markRead(ctx, body)
}

// MarkAllRead flags every unread message not sent by sender.
func (c *Client) MarkAllRead(ctx context.Context, sender string) (int64, error) {
	body, _ := json.Marshal(map[string]interface{}{"all": true, "sender": sender})
	return c.markRead(ctx, body)
}

func (c *Client) markRead(ctx context.Context, body []byte) (int64, error) {
	respBody, err := c.doRequest(ctx, "POST", "/messages/read", body)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// WaitResponse is the response from a blocking wait.
type WaitResponse struct {
	Found       bool            `json:"found"`
	Message     *models.Message `json:"message,omitempty"`
	WaitSeconds float64         `json:"wait_seconds"`
}

// Wait blocks until a message newer than watermark from another sender
// arrives or timeout elapses on the server. Found=false on timeout.
func (c *Client) Wait(ctx context.Context, clientID string, watermark int64, timeout time.Duration) (*WaitResponse, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"client_id":       clientID,
		"watermark":       watermark,
		"timeout_seconds": int(timeout.Seconds()),
	})

	// Leave the server room to answer after its own deadline fires.
	ctx, cancel := context.WithTimeout(ctx, timeout+30*time.Second)
	defer cancel()

	respBody, err := c.doRequest(ctx, "POST", "/wait", body)
	if err != nil {
		return nil, err
	}

	var resp WaitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatusResponse is the combined board and presence snapshot.
type StatusResponse struct {
	Stats struct {
		TotalMessages   int64 `json:"total_messages"`
		UnreadMessages  int64 `json:"unread_messages"`
		LatestCreatedAt int64 `json:"latest_created_at,omitempty"`
	} `json:"stats"`
	Clients []models.PresenceRecord `json:"clients"`
}

// Status fetches board counters and the presence snapshot.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	respBody, err := c.doRequest(ctx, "GET", "/status", nil)
	if err != nil {
		return nil, err
	}

	var resp StatusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register announces clientID to the presence tracker.
func (c *Client) Register(ctx context.Context, clientID, capabilities string) error {
	body, _ := json.Marshal(map[string]string{
		"client_id":    clientID,
		"capabilities": capabilities,
	})
	_, err := c.doRequest(ctx, "POST", "/presence/register", body)
	return err
}

// Heartbeat refreshes clientID's liveness.
func (c *Client) Heartbeat(ctx context.Context, clientID string) error {
	body, _ := json.Marshal(map[string]string{"client_id": clientID})
	_, err := c.doRequest(ctx, "POST", "/presence/heartbeat", body)
	return err
}

// PresenceResponse lists known clients with effective status.
type PresenceResponse struct {
	Clients []models.PresenceRecord `json:"clients"`
	Count   int                     `json:"count"`
}

// Presence fetches the presence snapshot.
func (c *Client) Presence(ctx context.Context) (*PresenceResponse, error) {
	respBody, err := c.doRequest(ctx, "GET", "/presence", nil)
	if err != nil {
		return nil, err
	}

	var resp PresenceResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search finds messages containing keyword, newest first.
func (c *Client) Search(ctx context.Context, keyword string, limit int) (*MessagesResponse, error) {
	q := url.Values{}
	q.Set("q", keyword)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	respBody, err := c.doRequest(ctx, "GET", "/find?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	respBody, err := c.doRequest(ctx, "GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
