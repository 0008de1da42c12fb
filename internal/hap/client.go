package hap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haplink/haplink/internal/logging"
	"github.com/haplink/haplink/internal/metrics"
	"github.com/haplink/haplink/internal/retry"
)

// ErrNetworkUnavailable marks transport-level failures. Callers retry on the
// next timer tick or user action; it is never fatal to the session.
var ErrNetworkUnavailable = errors.New("network unavailable")

// token1CookieName is the fixed name of the first auth cookie. The second
// cookie's name is issued by the server at logon.
const token1CookieName = "token"

// Client performs HTTP calls against a HAP+ server, attaching the two auth
// cookies to every authenticated request.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu         sync.RWMutex
	online     bool
	token1     string
	token2     string
	token2Name string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		online:      true,
	}
}

// SetTokens installs the session tokens attached to authenticated requests.
func (c *Client) SetTokens(token1, token2Name, token2 string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token1 = token1
	c.token2 = token2
	c.token2Name = token2Name
}

// ClearTokens removes the session tokens.
func (c *Client) ClearTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token1 = ""
	c.token2 = ""
	c.token2Name = ""
}

// applyAuth attaches the auth cookies to a request if tokens are set.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token1 != "" {
		req.AddCookie(&http.Cookie{Name: token1CookieName, Value: c.token1})
	}
	if c.token2 != "" && c.token2Name != "" {
		req.AddCookie(&http.Cookie{Name: c.token2Name, Value: c.token2})
	}
}

// IsOnline returns true if the server was reachable on the last call.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("server is back online")
		} else {
			logging.Warn("server is offline")
		}
	}
	c.online = online
}

func (c *Client) transportErr(err error) error {
	c.setOnline(false)
	return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
}

// escapePath percent-encodes each segment of a HAP+ path.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// KeepAliveCheck performs the cheap session keepalive call. The endpoint
// answers the literal body "OK" while the session cookie is valid.
func (c *Client) KeepAliveCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/test", nil)
	if err != nil {
		return err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordServerCall("keepalive", "error")
		return c.transportErr(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	if resp.StatusCode != http.StatusOK || strings.Trim(strings.TrimSpace(string(body)), `"`) != "OK" {
		metrics.RecordServerCall("keepalive", "error")
		c.setOnline(false)
		return fmt.Errorf("keepalive check failed: %d %q", resp.StatusCode, body)
	}

	metrics.RecordServerCall("keepalive", "ok")
	c.setOnline(true)
	return nil
}

// getJSON performs an authenticated GET with retry and decodes the JSON body
// into out. Used for the idempotent listing calls only.
func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	err := retry.Do(ctx, c.retryConfig, func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
		if err != nil {
			return err
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(c.transportErr(err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			c.setOnline(false)
			if resp.StatusCode >= 500 {
				return retry.Retryable(fmt.Errorf("server error: %d", resp.StatusCode))
			}
			return fmt.Errorf("%s failed: %d", op, resp.StatusCode)
		}

		c.setOnline(true)
		return json.NewDecoder(resp.Body).Decode(out)
	})

	if err != nil {
		metrics.RecordServerCall(op, "error")
		return err
	}
	metrics.RecordServerCall(op, "ok")
	return nil
}

// ListDrives lists the drives available to the logged-in user.
func (c *Client) ListDrives(ctx context.Context) ([]Drive, error) {
	var drives []Drive
	if err := c.getJSON(ctx, "list_drives", "/api/myfiles/Drives", &drives); err != nil {
		return nil, err
	}
	return drives, nil
}

// ListFolder lists the contents of a folder.
func (c *Client) ListFolder(ctx context.Context, path string) ([]Item, error) {
	var items []Item
	if err := c.getJSON(ctx, "list_folder", "/api/myfiles/Browse/"+escapePath(path), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ItemExists reports whether a file or folder exists at path. The server
// answers a JSON document describing an existing item, or the literal body
// "null" for a missing one.
func (c *Client) ItemExists(ctx context.Context, path string) (bool, error) {
	exists, err := retry.DoWithResult(ctx, c.retryConfig, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/myfiles/exists/"+escapePath(path), nil)
		if err != nil {
			return false, err
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return false, retry.Retryable(c.transportErr(err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			c.setOnline(false)
			if resp.StatusCode >= 500 {
				return false, retry.Retryable(fmt.Errorf("server error: %d", resp.StatusCode))
			}
			return false, fmt.Errorf("exists check failed: %d", resp.StatusCode)
		}

		c.setOnline(true)
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(string(body)) != "null", nil
	})

	if err != nil {
		metrics.RecordServerCall("exists", "error")
		return false, err
	}
	metrics.RecordServerCall("exists", "ok")
	return exists, nil
}

// Download fetches a remote file into a temp file and returns its local
// path. Progress is reported through fn as bytes arrive.
func (c *Client) Download(ctx context.Context, path string, fn ProgressFunc) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/myfiles/Download/"+escapePath(path), nil)
	if err != nil {
		return "", err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordServerCall("download", "error")
		return "", c.transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordServerCall("download", "error")
		c.setOnline(false)
		return "", fmt.Errorf("download failed: %d", resp.StatusCode)
	}
	c.setOnline(true)

	local := filepath.Join(os.TempDir(), uuid.NewString()+"-"+filepath.Base(path))
	f, err := os.Create(local)
	if err != nil {
		return "", err
	}

	n, err := io.Copy(f, newCountingReader(resp.Body, resp.ContentLength, fn))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(local)
		metrics.RecordServerCall("download", "error")
		return "", c.transportErr(err)
	}

	metrics.RecordServerCall("download", "ok")
	metrics.AddBytesDownloaded(n)
	return local, nil
}

// Upload sends a local file into remoteFolder under the given name using a
// multipart POST. Mutating call: never retried.
func (c *Client) Upload(ctx context.Context, localPath, remoteFolder, name string, fn ProgressFunc) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, newCountingReader(f, info.Size(), fn)); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	u := c.baseURL + "/api/myfiles/upload?path=" + url.QueryEscape(remoteFolder)
	req, err := http.NewRequestWithContext(ctx, "POST", u, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordServerCall("upload", "error")
		return c.transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		metrics.RecordServerCall("upload", "error")
		c.setOnline(false)
		var errResp ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("upload failed: %s", errResp.Error)
		}
		return fmt.Errorf("upload failed: %d", resp.StatusCode)
	}

	metrics.RecordServerCall("upload", "ok")
	metrics.AddBytesUploaded(info.Size())
	c.setOnline(true)
	return nil
}

// Delete removes a file or folder and returns the server's confirmation
// string verbatim. Verifying that the echo names the expected item is the
// caller's job. Mutating call: never retried.
func (c *Client) Delete(ctx context.Context, path string) (string, error) {
	body, _ := json.Marshal([]string{path})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/myfiles/Delete", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordServerCall("delete", "error")
		return "", c.transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordServerCall("delete", "error")
		c.setOnline(false)
		return "", fmt.Errorf("delete failed: %d", resp.StatusCode)
	}
	c.setOnline(true)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", c.transportErr(err)
	}

	metrics.RecordServerCall("delete", "ok")
	echo := strings.TrimSpace(string(data))
	// Some server builds quote the confirmation string.
	var unquoted string
	if json.Unmarshal([]byte(echo), &unquoted) == nil {
		echo = unquoted
	}
	return echo, nil
}

// CreateFolder creates a folder under parentPath. Mutating call: never
// retried.
func (c *Client) CreateFolder(ctx context.Context, parentPath, name string) error {
	u := c.baseURL + "/api/myfiles/new/" + escapePath(parentPath) + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, "POST", u, nil)
	if err != nil {
		return err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordServerCall("create_folder", "error")
		return c.transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		metrics.RecordServerCall("create_folder", "error")
		c.setOnline(false)
		return fmt.Errorf("create folder failed: %d", resp.StatusCode)
	}

	metrics.RecordServerCall("create_folder", "ok")
	c.setOnline(true)
	return nil
}

// PasteItem moves or copies a single item. Mutating call: never retried.
func (c *Client) PasteItem(ctx context.Context, oldPath, newPath string, overwrite, move bool) error {
	op := "copy"
	if move {
		op = "move"
	}

	body, _ := json.Marshal(PasteRequest{OldPath: oldPath, NewPath: newPath, Overwrite: overwrite})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/myfiles/"+op, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordServerCall("paste", "error")
		return c.transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordServerCall("paste", "error")
		c.setOnline(false)
		var errResp ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s failed: %s", op, errResp.Error)
		}
		return fmt.Errorf("%s failed: %d", op, resp.StatusCode)
	}

	metrics.RecordServerCall("paste", "ok")
	c.setOnline(true)
	return nil
}

// FetchTimetable retrieves the user's timetable entries.
func (c *Client) FetchTimetable(ctx context.Context, username string) ([]TimetableEntry, error) {
	var entries []TimetableEntry
	if err := c.getJSON(ctx, "timetable", "/api/timetable/LoadUser/"+url.PathEscape(username), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
