package http

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
)

var headerTerminator = []byte("\r\n\r\n")

// Wire is a rendered request split into its HTTP/1.1 parts.
type Wire struct {
	Method string
	Target string
	Proto  string
	Host   string
	Header http.Header
	Body   []byte
}

// ParseWire parses rendered request bytes: request line, CRLF terminated
// headers, one blank line, then the body. The body is taken verbatim and
// does not need a Content-Length header.
func ParseWire(raw []byte) (*Wire, error) {
	idx := bytes.Index(raw, headerTerminator)
	if idx < 0 {
		return nil, fmt.Errorf("malformed request: missing blank line after headers")
	}
	head := raw[:idx+len(headerTerminator)]
	body := raw[idx+len(headerTerminator):]

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(head)))
	if err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}

	header := req.Header.Clone()
	header.Del("Content-Length")

	return &Wire{
		Method: req.Method,
		Target: req.RequestURI,
		Proto:  req.Proto,
		Host:   req.Host,
		Header: header,
		Body:   append([]byte(nil), body...),
	}, nil
}
