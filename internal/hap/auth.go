package hap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/haplink/haplink/internal/metrics"
)

// Authenticate performs the logon call. An invalid credential pair is not an
// error: the server answers 200 with IsValid=false and the caller decides.
// Tokens are NOT installed on the client here; the session manager does that
// once it has accepted the response.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*LogonResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/ad/logon", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAuthAttempt("network")
		return nil, c.transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordAuthAttempt("network")
		c.setOnline(false)
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("logon failed (%d): %s", resp.StatusCode, data)
	}
	c.setOnline(true)

	var result LogonResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse logon response: %w", err)
	}

	if result.IsValid {
		metrics.RecordAuthAttempt("ok")
	} else {
		metrics.RecordAuthAttempt("invalid")
	}
	return &result, nil
}
