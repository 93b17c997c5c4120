package environment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/agenteval/internal/logging"
)

var (
	// ErrAgentUnavailable reports that the agent could not be reached or is overloaded.
	ErrAgentUnavailable = errors.New("agent unavailable")
	// ErrAgentTimeout reports that the agent did not answer in time.
	ErrAgentTimeout = errors.New("agent timeout")
	// ErrAgentProtocol reports a response that does not follow the agent contract.
	ErrAgentProtocol = errors.New("agent protocol error")
)

// Client invokes an agent with one input and returns its output.
// Implementations must be safe for concurrent use.
type Client interface {
	Invoke(ctx context.Context, input any) (any, error)
}

// HTTPClient calls an agent over HTTP: it POSTs {"input": ...} and accepts
// either {"output": ...} or any other JSON value as the output.
type HTTPClient struct {
	endpoint string
	agent    string
	token    string
	client   *http.Client
	timeout  time.Duration
}

// Options configures an HTTPClient.
type Options struct {
	Gateway string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// NewClient resolves the endpoint for cfg and returns a client bound to it.
func NewClient(cfg Config, opts Options) (*HTTPClient, error) {
	endpoint := EndpointURL(cfg, opts.Gateway)
	if _, err := parseEndpoint(endpoint); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		endpoint: endpoint,
		agent:    cfg.AgentName,
		token:    opts.Token,
		client:   httpClient,
		timeout:  timeout,
	}, nil
}

// Endpoint returns the resolved agent URL.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

type invokeRequest struct {
	Input any `json:"input"`
}

// Invoke sends input to the agent and decodes its output.
func (c *HTTPClient) Invoke(ctx context.Context, input any) (any, error) {
	body, err := json.Marshal(invokeRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("%w: encode input: %v", ErrAgentProtocol, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logging.LogRequest("EVAL->AGENT", c.endpoint, c.agent, body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrAgentProtocol, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	logging.LogRequest("AGENT->EVAL", c.endpoint, c.agent, raw)

	if err := classifyStatus(resp.StatusCode, resp.Status, raw); err != nil {
		return nil, err
	}
	return decodeOutput(raw)
}

func classifyStatus(code int, status string, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	detail := strings.TrimSpace(string(body))
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: agent returned %s: %s", ErrAgentTimeout, status, detail)
	case code >= 500 || code == http.StatusNotFound || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: agent returned %s: %s", ErrAgentUnavailable, status, detail)
	default:
		return fmt.Errorf("%w: agent returned %s: %s", ErrAgentProtocol, status, detail)
	}
}

func classifyTransportError(err error) error {
	if isDeadlineExceeded(err) {
		return fmt.Errorf("%w: %v", ErrAgentTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
}

func decodeOutput(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrAgentProtocol)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrAgentProtocol, err)
	}
	if obj, ok := value.(map[string]any); ok {
		if output, present := obj["output"]; present {
			return output, nil
		}
	}
	return value, nil
}

func isDeadlineExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "context deadline exceeded")
}
