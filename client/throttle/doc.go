// Package throttle provides an [http.RoundTripper] that rate-limits
// outbound HTTP requests using a token-bucket algorithm from
// [golang.org/x/time/rate].
//
// Upstream quotas are usually published per minute, so the budget is
// expressed that way:
//
//	rt, err := throttle.NewRoundTripper(
//		throttle.Config{PerMinute: 5, Burst: 1},
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// When the budget is exhausted, outbound requests block until a
// token becomes available or the request context is cancelled.
package throttle
