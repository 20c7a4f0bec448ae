package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRunHttpRequest performs one HTTP request. The URL and method come from
// the node's config; an optional "body" input becomes the request body.
// It returns "status_code" and "body" output fields.
func OnRunHttpRequest(ctx context.Context, config, inputs map[string]any) (map[string]any, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("http_request: config 'url' is required")
	}
	method := http.MethodGet
	if v, ok := config["method"]; ok {
		m, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("http_request: config 'method' must be a string, got %T", v)
		}
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if v, ok := inputs["body"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("http_request: input 'body' must be a string, got %T", v)
		}
		body = strings.NewReader(s)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", method, "url", url)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(bodyBytes),
	}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("http_request", OnRunHttpRequest)
}
