package tuya

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// LogEntry is one historic device event from the vendor's log endpoints.
type LogEntry struct {
	Code      string          `json:"code"`
	Value     json.RawMessage `json:"value"`
	EventTime int64           `json:"event_time"` // unix ms
	EventFrom string          `json:"event_from"`
	EventID   int64           `json:"event_id"`
	Status    string          `json:"status"`
}

// LogPage is one page of device event history.
type LogPage struct {
	Logs       []LogEntry `json:"logs"`
	HasNext    bool       `json:"has_next"`
	NextRowKey string     `json:"next_row_key"`
	DeviceID   string     `json:"device_id"`
}

// DeviceLogs queries device event logs (online/offline/activation/reset etc.)
// within [startTime, endTime], both 13-digit unix millisecond timestamps.
//
// eventTypes is the vendor's comma-separated type filter. Pass an empty
// lastRowKey for the first page.
func (c *Client) DeviceLogs(ctx context.Context, deviceID string, startTime, endTime int64, eventTypes string, pageSize int, lastRowKey string) (*LogPage, error) {
	query := url.Values{
		"event_types": {eventTypes},
		"start_time":  {strconv.FormatInt(startTime, 10)},
		"end_time":    {strconv.FormatInt(endTime, 10)},
		"size":        {strconv.Itoa(pageSize)},
	}
	if lastRowKey != "" {
		query.Set("last_row_key", lastRowKey)
	}

	result, err := c.Execute(ctx, http.MethodGet,
		fmt.Sprintf("/v1.0/iot-03/devices/%s/logs", deviceID), query, nil)
	if err != nil {
		return nil, err
	}

	var page LogPage
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, &APIError{Msg: "undecodable log page: " + err.Error(), kind: ErrProtocol}
	}
	return &page, nil
}

// ReportLogs queries historic datapoint status reports for a device.
//
// codes optionally filters to a comma-separated list of datapoint codes.
// Times are 13-digit unix millisecond timestamps.
func (c *Client) ReportLogs(ctx context.Context, deviceID string, startTime, endTime int64, codes string, pageSize int, lastRowKey string) (*LogPage, error) {
	query := url.Values{
		"start_time": {strconv.FormatInt(startTime, 10)},
		"end_time":   {strconv.FormatInt(endTime, 10)},
		"size":       {strconv.Itoa(pageSize)},
	}
	if codes != "" {
		query.Set("codes", codes)
	}
	if lastRowKey != "" {
		query.Set("last_row_key", lastRowKey)
	}

	result, err := c.Execute(ctx, http.MethodGet,
		fmt.Sprintf("/v2.0/cloud/thing/%s/report-logs", deviceID), query, nil)
	if err != nil {
		return nil, err
	}

	var page LogPage
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, &APIError{Msg: "undecodable report log page: " + err.Error(), kind: ErrProtocol}
	}
	return &page, nil
}

// Statistics returns aggregated device statistics for one datapoint code.
//
// interval is one of: quarters (15 min), days, weeks, months.
func (c *Client) Statistics(ctx context.Context, deviceID, interval string, startTime, endTime int64, code string) (json.RawMessage, error) {
	switch interval {
	case "quarters", "days", "weeks", "months":
	default:
		return nil, &APIError{
			Msg:  fmt.Sprintf("interval must be quarters, days, weeks or months, got %q", interval),
			kind: ErrValidation,
		}
	}

	query := url.Values{
		"start_time": {strconv.FormatInt(startTime, 10)},
		"end_time":   {strconv.FormatInt(endTime, 10)},
		"code":       {code},
	}
	return c.Execute(ctx, http.MethodGet,
		fmt.Sprintf("/v1.0/devices/%s/statistics/%s", deviceID, interval), query, nil)
}
