// Package rpc is the JSON command client for a nano-style node.
//
// Every request is a POST of the request body plus an "action"
// discriminator; every response either carries the expected fields or a
// top-level "error" string. One Client exists per configured currency;
// it is stateless beyond its endpoint and safe for concurrent use.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	nano "github.com/nanopay/nanogate/pkg"
)

type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Send posts {action, ...body} to the node and decodes the reply into
// result. A non-2xx status fails with transport-error; a non-empty
// "error" field in the reply fails with remote-error before result is
// decoded. body and result may be nil.
func (c *Client) Send(ctx context.Context, action string, body any, result any) error {
	payload := map[string]json.RawMessage{}
	if body != nil {
		enc, err := json.Marshal(body)
		if err != nil {
			return nano.NewErr(nano.BadRequest, "rpc %s: marshal request: %v", action, err)
		}
		if err := json.Unmarshal(enc, &payload); err != nil {
			return nano.NewErr(nano.BadRequest, "rpc %s: request body must be an object: %v", action, err)
		}
	}
	actionJSON, _ := json.Marshal(action)
	payload["action"] = actionJSON

	enc, err := json.Marshal(payload)
	if err != nil {
		return nano.NewErr(nano.BadRequest, "rpc %s: marshal payload: %v", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(enc))
	if err != nil {
		return nano.NewErr(nano.TransportError, "rpc %s: build request: %v", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nano.NewErr(nano.TransportError, "rpc %s: %v", action, err)
	}
	// we MUST read all of res.Body and call Close, otherwise the
	// underlying connection cannot be re-used.
	defer res.Body.Close()
	resBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nano.NewErr(nano.TransportError, "rpc %s: read response: %v", action, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nano.NewErr(nano.TransportError, "rpc %s: status %s", action, res.Status)
	}

	// surface the node's error field before attempting the typed decode.
	var errProbe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resBytes, &errProbe); err != nil {
		return nano.NewErr(nano.RemoteError, "rpc %s: unmarshal response: %v", action, err)
	}
	if errProbe.Error != "" {
		return nano.NewErr(nano.RemoteError, "rpc %s: %s", action, errProbe.Error)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resBytes, result); err != nil {
		return nano.NewErr(nano.RemoteError, "rpc %s: unmarshal result: %v | %v", action, err, string(resBytes))
	}
	return nil
}
