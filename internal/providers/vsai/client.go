package vsai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roomstaging/internal/domain"
	"roomstaging/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("vsai: api key is required")

// Options configures the Virtual Staging AI client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Virtual Staging AI API. Renders are
// requested with wait_for_completion so the service answers once the image
// is ready; the request timeout must cover generation time.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// RenderRequest captures the inputs of a single render.
type RenderRequest struct {
	ImageURL          string
	RoomType          string
	Style             string
	Watermark         bool
	WaitForCompletion bool
}

// RenderResult is the normalized render response. Raw keeps the provider
// payload for diagnostics.
type RenderResult struct {
	ResultURL string
	RenderID  string
	Raw       json.RawMessage
}

// Response is an upstream answer as-is. Data is the JSON body, a JSON string
// when the body was not JSON, or nil when it was empty.
type Response struct {
	OK     bool
	Status int
	Data   json.RawMessage
}

type renderBody struct {
	ImageURL          string `json:"image_url"`
	RoomType          string `json:"room_type"`
	Style             string `json:"style"`
	WaitForCompletion bool   `json:"wait_for_completion"`
	Watermark         bool   `json:"add_virtually_staged_watermark"`
}

type variationBody struct {
	RenderID          string `json:"render_id"`
	WaitForCompletion bool   `json:"wait_for_completion"`
	Watermark         bool   `json:"add_virtually_staged_watermark"`
}

type renderResponse struct {
	ResultImageURL string `json:"result_image_url"`
	RenderID       string `json:"render_id"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 3 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.virtualstagingai.app/v1"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Render creates a render and returns its result image.
func (c *Client) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	body := renderBody{
		ImageURL:          req.ImageURL,
		RoomType:          req.RoomType,
		Style:             req.Style,
		WaitForCompletion: req.WaitForCompletion,
		Watermark:         req.Watermark,
	}
	resp, err := c.Do(ctx, http.MethodPost, "/render/create", nil, body)
	if err != nil {
		return nil, &domain.RenderError{Reason: "render/create", Err: err}
	}
	return c.result("render/create", resp)
}

// CreateVariation renders a new variation of an existing render and waits
// for it.
func (c *Client) CreateVariation(ctx context.Context, renderID string, watermark bool) (*RenderResult, error) {
	body := variationBody{RenderID: renderID, WaitForCompletion: true, Watermark: watermark}
	resp, err := c.Do(ctx, http.MethodPost, "/render/create-variation", nil, body)
	if err != nil {
		return nil, &domain.RenderError{Reason: "render/create-variation", Err: err}
	}
	return c.result("render/create-variation", resp)
}

// Ping checks credentials and reachability.
func (c *Client) Ping(ctx context.Context) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/ping", nil, nil)
}

// GetRender looks up a render by id.
func (c *Client) GetRender(ctx context.Context, renderID string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/render", url.Values{"render_id": {renderID}}, nil)
}

// Do performs a raw call. Non-2xx answers are returned as a Response, not an
// error; errors are reserved for requests that never got an answer. A body
// of type json.RawMessage is sent verbatim, anything else is marshaled.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, ok := body.(json.RawMessage)
		if !ok {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("vsai: encode request: %w", err)
			}
			payload = encoded
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("vsai: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)
	if reader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vsai: http request: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vsai: read response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}

	return &Response{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Data:   asJSON(raw),
	}, nil
}

func (c *Client) result(op string, resp *Response) (*RenderResult, error) {
	if !resp.OK {
		return nil, &domain.RenderError{Status: resp.Status, Reason: op + " returned non-success status", Payload: resp.Data}
	}
	var decoded renderResponse
	_ = json.Unmarshal(resp.Data, &decoded)
	resultURL := strings.TrimSpace(decoded.ResultImageURL)
	if resultURL == "" {
		return nil, &domain.RenderError{Status: resp.Status, Reason: op + " returned no result_image_url", Payload: resp.Data}
	}
	c.logger.Debug().
		Str("op", op).
		Str("render_id", decoded.RenderID).
		Str("url", resultURL).
		Msg("vsai: render completed")
	return &RenderResult{ResultURL: resultURL, RenderID: decoded.RenderID, Raw: resp.Data}, nil
}

func asJSON(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
