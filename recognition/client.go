package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// ErrTransport marks every failure to obtain a decoded response: network
// errors, non-2xx statuses and malformed JSON.
var ErrTransport = errors.New("recognition transport failure")

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code    int
	Message string // the service's "error" field, if any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server response status code %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server response status code %d", e.Code)
}

// Client uploads ticket images to the recognition service.
type Client struct {
	url     *url.URL
	client  *http.Client
	encoder Encoder
	logger  *zap.Logger
}

// NewClient returns a client for the service rooted at baseURL
// (e.g. http://localhost:8080/api/v1). A nil client means
// http.DefaultClient; a nil logger discards logs.
func NewClient(baseURL string, encoder Encoder, client *http.Client, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if encoder == nil {
		return nil, errors.New("recognition client needs an encoder")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{url: u, client: client, encoder: encoder, logger: logger}, nil
}

// Recognize uploads img and decodes the scan response. Cancelling ctx
// aborts the request. All errors wrap ErrTransport.
func (c *Client) Recognize(ctx context.Context, img Image) (*ScanResponse, error) {
	body, contentType, err := c.encoder.Encode(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: encode upload: %w", ErrTransport, err)
	}
	defer body.Close()

	endpoint := c.url.JoinPath("scan-ticket").String()
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrTransport, err)
	}
	request.Header.Set("Content-Type", contentType)

	c.logger.Debug("uploading ticket image",
		zap.String("endpoint", endpoint),
		zap.String("filename", img.Filename()),
	)

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", ErrTransport, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w", ErrTransport, readStatusError(response))
	}

	var resp ScanResponse
	if err := json.NewDecoder(response.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode response body: %w", ErrTransport, err)
	}

	c.logger.Debug("scan response",
		zap.String("status", resp.Status),
		zap.Int("blocks", len(resp.Blocks)),
		zap.Float64("confidence", resp.Confidence),
	)
	return &resp, nil
}

func readStatusError(response *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	} else if len(raw) > 0 {
		msg = string(raw)
	}
	return &StatusError{Code: response.StatusCode, Message: msg}
}
