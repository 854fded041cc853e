package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

// Client talks to the sovd-server REST API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient creates a client for the server at rawURL.
func NewClient(rawURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid server URL %q", rawURL)
	}
	return &Client{base: u, token: token, http: &http.Client{Timeout: timeout}}, nil
}

type submitRequest struct {
	VehicleID     string         `json:"vehicle_id"`
	CommandName   string         `json:"command_name"`
	CommandParams map[string]any `json:"command_params"`
}

func (c *Client) SubmitCommand(ctx context.Context, vehicleID, name string, params map[string]any) (*model.Command, error) {
	var cmd model.Command
	err := c.do(ctx, http.MethodPost, "/api/v1/commands", nil,
		submitRequest{VehicleID: vehicleID, CommandName: name, CommandParams: params}, &cmd)
	return &cmd, err
}

func (c *Client) GetCommand(ctx context.Context, id string) (*model.Command, error) {
	var cmd model.Command
	err := c.do(ctx, http.MethodGet, "/api/v1/commands/"+url.PathEscape(id), nil, nil, &cmd)
	return &cmd, err
}

func (c *Client) ListCommands(ctx context.Context, query url.Values) ([]*model.Command, error) {
	var cmds []*model.Command
	err := c.do(ctx, http.MethodGet, "/api/v1/commands", query, nil, &cmds)
	return cmds, err
}

func (c *Client) ListResponses(ctx context.Context, id string) ([]*model.ResponseChunk, error) {
	var chunks []*model.ResponseChunk
	err := c.do(ctx, http.MethodGet, "/api/v1/commands/"+url.PathEscape(id)+"/responses", nil, nil, &chunks)
	return chunks, err
}

func (c *Client) ListVehicles(ctx context.Context) ([]*model.Vehicle, error) {
	var vehicles []*model.Vehicle
	err := c.do(ctx, http.MethodGet, "/api/v1/vehicles", nil, nil, &vehicles)
	return vehicles, err
}

func (c *Client) RegisterVehicle(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error) {
	var out model.Vehicle
	err := c.do(ctx, http.MethodPost, "/api/v1/vehicles", nil, v, &out)
	return &out, err
}

// WatchURL returns the WebSocket endpoint of a command.
func (c *Client) WatchURL(commandID string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/responses/" + url.PathEscape(commandID)
	u.RawQuery = url.Values{"token": []string{c.token}}.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, path, err)
	}
	return nil
}
