package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mvidal/trellis/pkg/schema"
)

// HTTPConfig configures the http.get handler.
type HTTPConfig struct {
	MaxResponseBody int64
	NetworkTimeout  time.Duration // fixed upper bound for one request
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultNetworkTimeout  = 30 * time.Second
)

const httpGetInputSchema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "params": {"type": "object", "additionalProperties": {"type": "string"}},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}}
  },
  "required": ["url"]
}`

const httpGetOutputSchema = `{
  "type": "object",
  "properties": {
    "status": {"type": "integer"},
    "body": {}
  }
}`

// HTTPGetHandler implements the "http.get" action: fetch a URL with query
// parameters and headers under a fixed network timeout, decoding the response
// body by content type.
type HTTPGetHandler struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPGetHandler creates a new http.get handler.
func NewHTTPGetHandler(cfg HTTPConfig) *HTTPGetHandler {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.NetworkTimeout <= 0 {
		cfg.NetworkTimeout = defaultNetworkTimeout
	}
	return &HTTPGetHandler{
		config: cfg,
		client: &http.Client{Timeout: cfg.NetworkTimeout},
	}
}

func (h *HTTPGetHandler) Name() string { return "http.get" }

func (h *HTTPGetHandler) Schema() HandlerSchema {
	return HandlerSchema{
		Description:  "Fetch a URL with query parameters and headers; returns {status, body} with content-type-aware decoding.",
		InputSchema:  json.RawMessage(httpGetInputSchema),
		OutputSchema: json.RawMessage(httpGetOutputSchema),
	}
}

func (h *HTTPGetHandler) Execute(ctx context.Context, node *schema.WorkflowNode, input map[string]any) (map[string]any, error) {
	rawURL := stringParam(input, "url", "")
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeHandler, "http.get: missing required param 'url'")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "http.get: invalid url %q", rawURL)
	}

	// Merge query parameters from the input template.
	if params, ok := input["params"].(map[string]any); ok {
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.config.NetworkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "http.get: build request: %s", err.Error()).WithCause(err)
	}

	if headers, ok := input["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "http.get: request failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, h.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "http.get: read response body: %s", err.Error()).WithCause(err)
	}

	return map[string]any{
		"status": resp.StatusCode,
		"body":   decodeBody(resp.Header.Get("Content-Type"), bodyBytes),
	}, nil
}

// decodeBody parses the response body by content type: JSON becomes structured
// data, everything else stays text.
func decodeBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			return parsed
		}
	}
	return string(body)
}

// --- shared param helpers ---

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}
