// Package http delivers rendered request bytes to the API under test.
//
// Requests arrive as HTTP/1.1 wire text produced by the template renderer.
// The client parses them, sends them through net/http with connection
// pooling, optional throttling and proxy support, and returns the full
// response body.
package http
