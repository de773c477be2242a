// Package client calls the pairlink daemon's HTTP API over its Unix
// socket. It is the programmatic surface the CLI is built on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

// Client talks to a running pairlink daemon.
type Client struct {
	httpClient *http.Client
	socketPath string

	// AccessToken, when set, is sent on requests that the daemon gates
	// behind api.file_access_token.
	AccessToken string
}

// New creates a Client connected to the daemon socket.
func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			// Session creation blocks until a challenge or pairing code is
			// available, so the client timeout must cover the QR window.
			Timeout: 5 * time.Minute,
		},
		socketPath: socketPath,
	}
}

// IsRunning returns true if the daemon is available and responding.
func (c *Client) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// CreateQR starts a QR-mode session and returns the rendered challenge.
func (c *Client) CreateQR(ctx context.Context) (*CreateResult, error) {
	var result CreateResult
	if err := c.do(ctx, "POST", "/api/sessions", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreatePair starts a pairing-mode session for the phone number.
func (c *Client) CreatePair(ctx context.Context, phone string) (*CreateResult, error) {
	body, _ := json.Marshal(map[string]string{"phone": phone})
	var result CreateResult
	if err := c.do(ctx, "POST", "/api/sessions/pair", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List returns every registered session plus the live in-flight view.
func (c *Client) List(ctx context.Context) (*SessionList, error) {
	var list SessionList
	if err := c.do(ctx, "GET", "/api/sessions", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Get returns one session's record and credential facts.
func (c *Client) Get(ctx context.Context, id string) (*SessionDetail, error) {
	var detail SessionDetail
	if err := c.do(ctx, "GET", "/api/sessions/"+id, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Remove stops and deletes a session. Completed sessions are refused
// unless force is set.
func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	path := "/api/sessions/" + id
	if force {
		path += "?force=1"
	}
	return c.do(ctx, "DELETE", path, nil, nil)
}

// Files lists a session's credential directory contents.
func (c *Client) Files(ctx context.Context, id string) ([]FileInfo, error) {
	var files []FileInfo
	if err := c.do(ctx, "GET", "/api/sessions/"+id+"/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Archive streams the session's credential directory as a zip into w.
func (c *Client) Archive(ctx context.Context, id string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/api/sessions/"+id+"/archive", nil)
	if err != nil {
		return err
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// RunningConfig returns the configuration the daemon is running with.
func (c *Client) RunningConfig(ctx context.Context) (*RunningConfig, error) {
	var cfg RunningConfig
	if err := c.do(ctx, "GET", "/api/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Events subscribes to a session's lifecycle notifications over a
// websocket. The channel closes when the context is cancelled or the
// connection drops.
func (c *Client) Events(ctx context.Context, id string) (<-chan Event, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(dialCtx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(dialCtx, "unix", c.socketPath)
		},
	}

	conn, resp, err := dialer.DialContext(ctx, "ws://unix/api/sessions/"+id+"/events", nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}

	ch := make(chan Event, 10)
	go func() {
		defer close(ch)
		defer conn.Close()

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		for {
			var event Event
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.AccessToken != "" {
		req.Header.Set("X-Access-Token", c.AccessToken)
	}
}

func decodeError(resp *http.Response) error {
	var apiErr APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
		apiErr.Status = resp.StatusCode
		return &apiErr
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}
