// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package httpmock provides a canned-response http.RoundTripper for tests.
package httpmock

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// Response represents a mocked HTTP response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Transport is a custom HTTP transport for handling mocked responses.
type Transport struct {
	mu        sync.Mutex
	responses map[string][]Response
	requests  []string
}

// NewTransport creates a new instance of Transport.
func NewTransport() *Transport {
	return &Transport{
		responses: make(map[string][]Response),
	}
}

// AddResponse registers a response for a given URL.
// Multiple responses for the same URL will be returned in sequence.
func (t *Transport) AddResponse(url string, response Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[url] = append(t.responses[url], response)
}

// Requests returns the URLs seen by the transport, in order.
func (t *Transport) Requests() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.requests...)
}

// RoundTrip implements the http.RoundTripper interface.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	url := req.URL.String()
	t.requests = append(t.requests, url)

	if responses, ok := t.responses[url]; ok && len(responses) > 0 {
		response := responses[0]
		if len(responses) > 1 {
			// the last response is kept and repeated
			t.responses[url] = responses[1:]
		}

		headers := make(http.Header)
		for key, value := range response.Headers {
			headers.Set(key, value)
		}

		return &http.Response{
			StatusCode: response.StatusCode,
			Header:     headers,
			Body:       io.NopCloser(strings.NewReader(response.Body)),
			Request:    req,
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("Not Found")),
		Request:    req,
	}, nil
}

// NewClient creates an *http.Client configured to use the Transport.
func NewClient() (*http.Client, *Transport) {
	transport := NewTransport()
	client := &http.Client{Transport: transport}
	return client, transport
}
