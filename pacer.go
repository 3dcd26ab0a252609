// Package pacer exposes builders for the interval-throttled queue and
// the HTTP client that together keep a batch of upstream calls under a
// rate limit.
package pacer

import (
	"time"

	"github.com/adamwoolhether/pacer/client"
	"github.com/adamwoolhether/pacer/queue"
)

// NewQueue instantiates a *queue.Queue that waits interval before each
// submitted operation.
func NewQueue(interval time.Duration, opts ...queue.Option) (*queue.Queue, error) {
	return queue.New(interval, opts...)
}

// NewClient instantiates a new *Client with the provided options.
// If not specified, a fresh http.Client and http.DefaultTransport are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
