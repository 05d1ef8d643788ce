// Package transport fetches pending commands from the central command
// endpoint. One outbound request per poll cycle, no local state.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bridgefleet/bridgefleet/pkg/command"
	"github.com/bridgefleet/bridgefleet/pkg/ident"
)

// Error covers every way a fetch can fail: network failure, a status code
// outside the success range (other than 204), or a malformed response body.
// It is recovered at the cycle boundary and never fatal.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// pollResponse is the wire shape of a success-range response body.
type pollResponse struct {
	HasCommand bool   `json:"hasCommand"`
	Command    string `json:"command"`
}

const maxResponseBytes = 1 << 20

// Client issues the poll request. Safe for concurrent use, though the
// scheduler only ever runs one fetch at a time.
type Client struct {
	endpoint string
	hc       *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		hc: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchPendingCommand asks the endpoint whether a command is pending for the
// device. A 204 is the normal "nothing to do" answer; any other non-2xx
// status and any undecodable body is a *Error.
func (c *Client) FetchPendingCommand(ctx context.Context, id ident.DeviceID) (command.Envelope, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return command.None(), &Error{Op: "parse-endpoint", Err: err}
	}
	q := u.Query()
	q.Set("deviceId", id.String())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return command.None(), &Error{Op: "build-request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return command.None(), &Error{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return command.None(), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return command.None(), &Error{Op: "fetch", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return command.None(), &Error{Op: "read-body", Err: err}
	}
	var pr pollResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return command.None(), &Error{Op: "decode-body", Err: err}
	}

	if !pr.HasCommand {
		return command.None(), nil
	}
	return command.FromRaw(pr.Command), nil
}
