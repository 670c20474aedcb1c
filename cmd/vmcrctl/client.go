package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	cerrdefs "github.com/containerd/errdefs"
)

// dialer returns an http.Client that dials socketPath for every request,
// the same "unix socket as transport" shape moby-moby's client package uses
// for the Docker daemon connection.
func dialer(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

type checkpointResponse struct {
	Code            string   `json:"code"`
	Error           string   `json:"error,omitempty"`
	FailureMessages []string `json:"failure_messages,omitempty"`
}

type statusResponse struct {
	LastAttemptID  string `json:"last_attempt_id,omitempty"`
	LastResultCode string `json:"last_result_code,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	Attempted      bool   `json:"attempted"`
}

// requestJSON issues method against path over socketPath and decodes the
// JSON body into out. A non-2xx response is classified through
// containerd/errdefs so callers can branch on cerrdefs.IsAborted etc.
// rather than on raw status codes. A 409 Conflict (the coordinator reported
// a failed attempt) is returned as cerrdefs.ErrAborted, with its body still
// decoded into out when out is a *checkpointResponse.
func requestJSON(ctx context.Context, socketPath, method, path string, out interface{}) error {
	client := dialer(socketPath)
	req, err := http.NewRequestWithContext(ctx, method, "http://diagnostic"+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", cerrdefs.ErrUnavailable, socketPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var body checkpointResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if cr, ok := out.(*checkpointResponse); ok {
			*cr = body
		}
		return fmt.Errorf("%w: %s", cerrdefs.ErrAborted, body.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", cerrdefs.ErrUnknown, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
