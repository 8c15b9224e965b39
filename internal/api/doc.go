// Package api is a REST client for the positions API.
//
// Calls send an optional Bearer token and a User-Agent carrying the build
// version. Transport failures, 5xx and 429 responses are retried with
// jittered exponential backoff, or after the server's Retry-After when one
// is given. Other 4xx responses fail at once with an *APIError.
package api
