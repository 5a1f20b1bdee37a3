package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FlexString decodes upstream identifiers that may arrive as JSON strings
// or numbers.
type FlexString string

// UnmarshalJSON accepts both `"42"` and `42`.
func (v *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FlexString(s)
		return nil
	}
	*v = FlexString(string(data))
	return nil
}

// Entry is the upstream wire shape for one attendance entry. DeviceInfo
// and LocationData are kept raw: they may arrive as encoded text or as
// already-structured objects, and the transform step normalizes them.
type Entry struct {
	ID            FlexString      `json:"id"`
	StudentID     FlexString      `json:"studentId"`
	StudentName   string          `json:"studentName"`
	StudentNumber string          `json:"studentNumber"`
	RegisterID    FlexString      `json:"registerId"`
	ClassName     string          `json:"className"`
	Date          string          `json:"date"`
	StartTime     string          `json:"startTime"`
	EndTime       string          `json:"endTime"`
	Status        string          `json:"status"`
	CheckInTime   string          `json:"checkInTime"`
	DeviceInfo    json.RawMessage `json:"deviceInfo"`
	LocationData  json.RawMessage `json:"locationData"`
}

// Client calls the upstream attendance system-of-record.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with a bounded request timeout; exceeding it
// is treated as a sync failure by the engine.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchAll requests the complete attendance dataset in one call.
func (c *Client) FetchAll(ctx context.Context) ([]Entry, error) {
	return c.getEntries(ctx, "/internal/attendance/all", nil)
}

// FetchUpdatedSince requests entries updated at or after since.
func (c *Client) FetchUpdatedSince(ctx context.Context, since time.Time) ([]Entry, error) {
	params := url.Values{}
	params.Set("since", since.UTC().Format(time.RFC3339))
	return c.getEntries(ctx, "/internal/attendance/updated", params)
}

func (c *Client) getEntries(ctx context.Context, path string, params url.Values) ([]Entry, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	return entries, nil
}
