package mlflowrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/platform/requestid"
	"github.com/animus-labs/animus-tracking/internal/repo"
)

const apiPrefix = "/api/2.0/mlflow/"

// maxErrorBody caps how much of an error response is kept in APIError.
const maxErrorBody = 64 << 10

// Client talks to a tracking server exposing the MLflow REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
}

// APIError is a non-2xx response from the tracking server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tracking server: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tracking server: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps server error codes onto repository sentinels.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "RESOURCE_DOES_NOT_EXIST":
		return repo.ErrNotFound
	case "RESOURCE_ALREADY_EXISTS":
		return repo.ErrConflict
	case "INVALID_PARAMETER_VALUE":
		if strings.Contains(strings.ToLower(e.Message), "stage") {
			return domain.ErrInvalidStage
		}
	}
	if e.StatusCode == http.StatusNotFound {
		return repo.ErrNotFound
	}
	return nil
}

// New returns a client for rawURL. httpClient carries authentication; nil
// uses http.DefaultClient. A zero timeout leaves calls bounded only by ctx.
func New(rawURL string, httpClient *http.Client, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse tracking url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tracking url must use http or https (got %q)", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("tracking url has no host: %q", rawURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, http: httpClient, timeout: timeout}, nil
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + apiPrefix + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c == nil || c.http == nil {
		return errors.New("tracking client not initialized")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestid.Header, requestid.FromContext(ctx))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.ErrorCode != "" {
		apiErr.Code = payload.ErrorCode
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// flexInt64 accepts int64 values encoded either as JSON numbers or strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse int64 %q: %w", s, err)
	}
	*f = flexInt64(v)
	return nil
}

func millis(v flexInt64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(v)).UTC()
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var _ repo.Backend = (*Client)(nil)
