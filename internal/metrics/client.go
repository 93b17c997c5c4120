// internal/metrics/client.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/logging"
)

// Client is a decorator that wraps an environment.Client to record call latency.
type Client struct {
	wrapped    environment.Client
	aggregator *Aggregator
	key        string
	now        func() time.Time
}

// NewClient wraps an agent client so every Invoke is timed under key.
func NewClient(wrapped environment.Client, aggregator *Aggregator, key string) *Client {
	logging.LogEvent("[METRICS] Wrapping agent client %q with latency metrics", key)
	return &Client{wrapped: wrapped, aggregator: aggregator, key: key, now: time.Now}
}

// Invoke times the wrapped call. Successful calls add their latency in
// milliseconds; failed calls only increment the failure count.
func (c *Client) Invoke(ctx context.Context, input any) (any, error) {
	start := c.now()
	out, err := c.wrapped.Invoke(ctx, input)
	if c.aggregator != nil {
		if err != nil {
			c.aggregator.RecordFailure(c.key)
		} else {
			c.aggregator.Record(c.key, float64(c.now().Sub(start).Microseconds())/1000)
		}
	}
	return out, err
}
