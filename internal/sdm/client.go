package sdm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/httpx"
)

// DefaultBaseURL is the production device API endpoint.
const DefaultBaseURL = "https://smartdevicemanagement.googleapis.com/v1"

// Client issues authenticated calls against the device API for one upstream
// project. All requests go through the shared retrying HTTP client.
type Client struct {
	baseURL   string
	projectID string
	http      *httpx.Client
}

func NewClient(baseURL, projectID string, hc *httpx.Client) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		http:      hc,
	}
}

type listDevicesResponse struct {
	Devices []RawDevice `json:"devices"`
}

// ListDevices returns all devices of the project in upstream order.
func (c *Client) ListDevices(ctx context.Context, accessToken string) ([]RawDevice, error) {
	var out listDevicesResponse
	url := fmt.Sprintf("%s/enterprises/%s/devices", c.baseURL, c.projectID)
	if err := c.getJSON(ctx, url, accessToken, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// GetDevice fetches a single device by its opaque id.
func (c *Client) GetDevice(ctx context.Context, accessToken, deviceID string) (RawDevice, error) {
	var out RawDevice
	url := fmt.Sprintf("%s/enterprises/%s/devices/%s", c.baseURL, c.projectID, deviceID)
	if err := c.getJSON(ctx, url, accessToken, &out); err != nil {
		return RawDevice{}, err
	}
	return out, nil
}

// ExecuteCommand issues a device command (setpoint or mode write).
func (c *Client) ExecuteCommand(ctx context.Context, accessToken, deviceID, command string, params map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"command": command,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	url := fmt.Sprintf("%s/enterprises/%s/devices/%s:executeCommand", c.baseURL, c.projectID, deviceID)

	header := authHeader(accessToken)
	header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(ctx, http.MethodPost, url, header, body)
	if err != nil {
		return err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nest.ClassifyUpstream(resp.Status, resp.Body)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url, accessToken string, out any) error {
	resp, err := c.http.Do(ctx, http.MethodGet, url, authHeader(accessToken), nil)
	if err != nil {
		return err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nest.ClassifyUpstream(resp.Status, resp.Body)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nest.E(nest.KindUpstream, "decode upstream response: %v", err)
	}
	return nil
}

func authHeader(accessToken string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	return h
}
