// Package client provides a configurable JSON HTTP client built on
// [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(30 * time.Second),
//		client.WithUserAgent("marketscan/1.0"),
//		client.WithSecretQuery("apikey"),
//	)
//
// # Making Requests
//
// Construct a [URL] and [Request], then execute with [Client.Do]:
//
//	u := client.URL("https", "www.alphavantage.co", "/query")
//	req, err := client.Request(ctx, u, http.MethodGet)
//	err = c.Do(req, http.StatusOK, client.WithDestination(&result))
//
// [Client.GetJSON] combines both steps for the common GET case.
//
// # Throttling
//
// [WithThrottle] installs a token-bucket transport from
// [github.com/adamwoolhether/pacer/client/throttle] that caps outbound
// requests per minute. Requests over budget wait for a token or fail
// when their context ends.
//
// # Secrets
//
// Query parameters named with [WithSecretQuery] are replaced with
// "REDACTED" wherever the client puts a URL into a log line or error.
package client
