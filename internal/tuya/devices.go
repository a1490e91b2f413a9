package tuya

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Device is a device record from the cloud project.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CustomName string `json:"customName"`
	ProductID  string `json:"productId"`
	Category   string `json:"category"`
	IsOnline   bool   `json:"isOnline"`
	GatewayID  string `json:"gatewayId"`
	CreateTime int64  `json:"createTime"`
	ActiveTime int64  `json:"activeTime"`
}

// DisplayName returns the user-assigned name, falling back to the product name.
func (d Device) DisplayName() string {
	if d.CustomName != "" {
		return d.CustomName
	}
	return d.Name
}

// DevicePage is one page of the device listing.
type DevicePage struct {
	List       []Device `json:"list"`
	LastRowKey string   `json:"last_row_key"`
	HasMore    bool     `json:"has_more"`
	Total      int64    `json:"total"`
}

// StatusPoint is one datapoint of a device's current status.
type StatusPoint struct {
	Code  string          `json:"code"`
	Value json.RawMessage `json:"value"`
}

// Command is one control instruction for a device.
type Command struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// ListDevices returns one page of devices under the cloud project.
// Pass an empty lastRowKey for the first page.
func (c *Client) ListDevices(ctx context.Context, pageSize int, lastRowKey string) (*DevicePage, error) {
	query := url.Values{"size": {strconv.Itoa(pageSize)}}
	if lastRowKey != "" {
		query.Set("last_row_key", lastRowKey)
	}

	result, err := c.Execute(ctx, http.MethodGet, "/v2.0/cloud/thing/device", query, nil)
	if err != nil {
		return nil, err
	}

	// The endpoint returns a bare array for small projects and a paging
	// object otherwise.
	var page DevicePage
	if err := json.Unmarshal(result, &page); err == nil && (len(page.List) > 0 || page.LastRowKey != "") {
		return &page, nil
	}
	var list []Device
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, &APIError{Msg: "undecodable device page: " + err.Error(), kind: ErrProtocol}
	}
	return &DevicePage{List: list}, nil
}

// AllDevices walks the device listing to completion.
func (c *Client) AllDevices(ctx context.Context, pageSize int) ([]Device, error) {
	var devices []Device
	lastRowKey := ""
	for {
		page, err := c.ListDevices(ctx, pageSize, lastRowKey)
		if err != nil {
			return nil, err
		}
		devices = append(devices, page.List...)
		if len(page.List) == 0 || page.LastRowKey == "" {
			return devices, nil
		}
		lastRowKey = page.LastRowKey
	}
}

// GetDevice returns full details for a single device.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	result, err := c.Execute(ctx, http.MethodGet, "/v1.0/devices/"+deviceID, nil, nil)
	if err != nil {
		return nil, err
	}
	var d Device
	if err := json.Unmarshal(result, &d); err != nil {
		return nil, &APIError{Msg: "undecodable device: " + err.Error(), kind: ErrProtocol}
	}
	return &d, nil
}

// DeviceStatus returns the current datapoint status of a device.
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) ([]StatusPoint, error) {
	result, err := c.Execute(ctx, http.MethodGet,
		fmt.Sprintf("/v1.0/iot-03/devices/%s/status", deviceID), nil, nil)
	if err != nil {
		return nil, err
	}
	var status []StatusPoint
	if err := json.Unmarshal(result, &status); err != nil {
		return nil, &APIError{Msg: "undecodable status: " + err.Error(), kind: ErrProtocol}
	}
	return status, nil
}

// DeviceFunctions returns the controllable function set for a device.
// The payload shape varies by category, so the raw result is returned.
func (c *Client) DeviceFunctions(ctx context.Context, deviceID string) (json.RawMessage, error) {
	return c.Execute(ctx, http.MethodGet,
		fmt.Sprintf("/v1.0/devices/%s/functions", deviceID), nil, nil)
}

// SendCommands sends control commands to a device.
func (c *Client) SendCommands(ctx context.Context, deviceID string, commands []Command) error {
	_, err := c.Execute(ctx, http.MethodPost,
		fmt.Sprintf("/v1.0/iot-03/devices/%s/commands", deviceID),
		nil, map[string]any{"commands": commands})
	return err
}

// SubDevices lists sub-devices attached to a gateway.
func (c *Client) SubDevices(ctx context.Context, gatewayID string) ([]Device, error) {
	result, err := c.Execute(ctx, http.MethodGet,
		fmt.Sprintf("/v1.0/iot-03/devices/%s/sub-devices", gatewayID), nil, nil)
	if err != nil {
		return nil, err
	}
	var devices []Device
	if err := json.Unmarshal(result, &devices); err != nil {
		return nil, &APIError{Msg: "undecodable sub-devices: " + err.Error(), kind: ErrProtocol}
	}
	return devices, nil
}
