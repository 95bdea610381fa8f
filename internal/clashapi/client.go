// Package clashapi is a thin client for the engine's Clash compatible
// control API.
package clashapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const requestTimeout = 5 * time.Second

// Client talks to one engine instance's external controller.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient builds a client for the controller at addr
// ("127.0.0.1:9090"). secret may be empty when the API is open.
func NewClient(addr, secret string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		secret:  secret,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("clash api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clash api: %s returned %s", path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("clash api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clash api: %s returned %s", path, resp.Status)
	}
	return nil
}

// Version fetches the engine version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var body struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/version", &body); err != nil {
		return "", err
	}
	return body.Version, nil
}

// ConnectionMetadata describes the intercepted flow of a connection.
type ConnectionMetadata struct {
	Network         string `json:"network"`
	Type            string `json:"type"`
	SourceIP        string `json:"sourceIP"`
	DestinationIP   string `json:"destinationIP"`
	SourcePort      string `json:"sourcePort"`
	DestinationPort string `json:"destinationPort"`
	Host            string `json:"host"`
}

// Connection is one live connection tracked by the engine.
type Connection struct {
	ID          string             `json:"id"`
	Metadata    ConnectionMetadata `json:"metadata"`
	Upload      int64              `json:"upload"`
	Download    int64              `json:"download"`
	Start       time.Time          `json:"start"`
	Chains      []string           `json:"chains"`
	Rule        string             `json:"rule"`
	RulePayload string             `json:"rulePayload"`
}

// ConnectionsSnapshot is the /connections payload: totals plus the live
// connection list.
type ConnectionsSnapshot struct {
	DownloadTotal int64        `json:"downloadTotal"`
	UploadTotal   int64        `json:"uploadTotal"`
	Connections   []Connection `json:"connections"`
}

// Connections fetches the live connection snapshot.
func (c *Client) Connections(ctx context.Context) (*ConnectionsSnapshot, error) {
	var snap ConnectionsSnapshot
	if err := c.getJSON(ctx, "/connections", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CloseConnection terminates a single connection by id.
func (c *Client) CloseConnection(ctx context.Context, id string) error {
	return c.delete(ctx, "/connections/"+url.PathEscape(id))
}

// CloseAllConnections terminates every live connection.
func (c *Client) CloseAllConnections(ctx context.Context) error {
	return c.delete(ctx, "/connections")
}

// Proxy is one entry of the /proxies listing.
type Proxy struct {
	Name string   `json:"name"`
	Type string   `json:"type"`
	Now  string   `json:"now"`
	All  []string `json:"all"`
}

// Proxies lists the engine's outbounds by tag.
func (c *Client) Proxies(ctx context.Context) (map[string]Proxy, error) {
	var body struct {
		Proxies map[string]Proxy `json:"proxies"`
	}
	if err := c.getJSON(ctx, "/proxies", &body); err != nil {
		return nil, err
	}
	return body.Proxies, nil
}

// Delay runs a latency test against one outbound through the engine.
// Returns the measured delay in milliseconds.
func (c *Client) Delay(ctx context.Context, tag, testURL string, timeout time.Duration) (int, error) {
	q := url.Values{}
	q.Set("url", testURL)
	q.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	path := "/proxies/" + url.PathEscape(tag) + "/delay?" + q.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return 0, err
	}

	// The engine holds the request for up to the test timeout; give the
	// transport room beyond it.
	client := &http.Client{Timeout: timeout + 2*time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("clash api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("clash api: delay test for %q returned %s", tag, resp.Status)
	}

	var body struct {
		Delay int `json:"delay"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Delay, nil
}

// LogLine is one structured log record streamed from /logs.
type LogLine struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// LogStream reads engine log lines until closed.
type LogStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Next blocks for the next log line. io.EOF means the engine closed the
// stream.
func (s *LogStream) Next() (LogLine, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return LogLine{}, err
		}
		return LogLine{}, io.EOF
	}
	var line LogLine
	if err := json.Unmarshal(s.scanner.Bytes(), &line); err != nil {
		return LogLine{}, err
	}
	return line, nil
}

// Close terminates the stream.
func (s *LogStream) Close() error {
	return s.body.Close()
}

// Logs opens a streaming log subscription at the given level
// ("debug", "info", "warning", "error").
func (c *Client) Logs(ctx context.Context, level string) (*LogStream, error) {
	path := "/logs"
	if level != "" {
		path += "?level=" + url.QueryEscape(level)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	// Streaming endpoint, no overall timeout.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clash api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("clash api: /logs returned %s", resp.Status)
	}
	return &LogStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// Configs fetches the engine's runtime configuration view.
func (c *Client) Configs(ctx context.Context) (map[string]any, error) {
	var body map[string]any
	if err := c.getJSON(ctx, "/configs", &body); err != nil {
		return nil, err
	}
	return body, nil
}
