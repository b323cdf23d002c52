// Package nodes ships the builtin node catalog. The engine only ever sees
// these types through the Node contract; front-ends call RegisterBuiltins
// to make them available.
package nodes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPRequestNode performs one HTTP request. The url arrives as an input
// so upstream nodes can compute it; method and headers are static config.
type HTTPRequestNode struct {
	client *http.Client
}

func NewHTTPRequestNode() *HTTPRequestNode {
	return &HTTPRequestNode{
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (n *HTTPRequestNode) Type() string {
	return "http.request"
}

func (n *HTTPRequestNode) Execute(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
	urlValue, err := nc.RequireInput("url")
	if err != nil {
		return nil, err
	}
	url, ok := urlValue.AsString()
	if !ok {
		return nil, domain.NewInvalidInputTypeError("url", "string", string(urlValue.Kind()))
	}

	methodValue := nc.ConfigOr("method", domain.StringValue(http.MethodGet))
	method, _ := methodValue.AsString()
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return nil, domain.NewNodeConfigurationError("unsupported method: " + method)
	}

	var body io.Reader
	if bodyValue, ok := nc.OptionalInput("body"); ok {
		switch {
		case bodyValue.IsNull():
		default:
			if raw, ok := bodyValue.AsJSON(); ok {
				body = bytes.NewReader(raw)
			} else if text, ok := bodyValue.AsString(); ok {
				body = strings.NewReader(text)
			} else if data, ok := bodyValue.AsBytes(); ok {
				body = bytes.NewReader(data)
			} else {
				return nil, domain.NewInvalidInputTypeError("body", "string, bytes or json", string(bodyValue.Kind()))
			}
		}
	}

	nc.Events.Info(fmt.Sprintf("%s %s", method, url))

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, domain.NewExecutionError("invalid request: " + err.Error())
	}
	if headers, ok := nc.Config["headers"]; ok {
		if fields, ok := headers.AsObject(); ok {
			for key, value := range fields {
				if text, ok := value.AsString(); ok {
					req.Header.Set(key, text)
				}
			}
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || nc.IsCancelled() {
			return nil, domain.NewNodeCancelledError()
		}
		return nil, domain.NewExecutionError("http request failed: " + err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewExecutionError("failed to read response body: " + err.Error())
	}

	headerFields := make(map[string]domain.Value, len(resp.Header))
	for key := range resp.Header {
		headerFields[key] = domain.StringValue(resp.Header.Get(key))
	}

	return ports.NewNodeOutput().
		WithOutput("status", domain.IntValue(int64(resp.StatusCode))).
		WithOutput("body", domain.StringValue(string(respBody))).
		WithOutput("headers", domain.ObjectValue(headerFields)), nil
}

type HTTPRequestNodeFactory struct{}

func (f *HTTPRequestNodeFactory) Create(config map[string]domain.Value) (ports.Node, error) {
	return NewHTTPRequestNode(), nil
}

func (f *HTTPRequestNodeFactory) Type() string {
	return "http.request"
}

func (f *HTTPRequestNodeFactory) Metadata() ports.NodeTypeMetadata {
	return ports.NodeTypeMetadata{
		Type:        "http.request",
		Description: "Perform an HTTP request",
		Category:    "http",
		Inputs: []ports.PortDefinition{
			{Name: "url", Description: "Request URL", Required: true},
			{Name: "body", Description: "Request body for POST/PUT/PATCH"},
		},
		Outputs: []ports.PortDefinition{
			{Name: "status", Description: "HTTP status code"},
			{Name: "body", Description: "Response body"},
			{Name: "headers", Description: "Response headers"},
		},
	}
}
