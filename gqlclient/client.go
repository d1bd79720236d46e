package gqlclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Options client options
type Options struct {
	URL            string
	Before         []BeforeFunc
	Insecure       bool
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client posts GraphQL documents to a single upstream endpoint
type Client struct {
	url        string
	before     []BeforeFunc
	httpClient *http.Client
}

// NewClient creates a new client
func NewClient(opts *Options) (client *Client, err error) {
	var httpClient *http.Client

	if opts.URL == "" {
		return nil, fmt.Errorf("no upstream url specified")
	}

	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = time.Duration(defaultRequestTimeout) * time.Second
	}

	if opts.HTTPClient != nil {
		httpClient = opts.HTTPClient
	} else {
		httpClient = &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: opts.Insecure,
				},
			},
		}
	}

	client = &Client{
		url:        opts.URL,
		before:     opts.Before,
		httpClient: httpClient,
	}
	return
}

// URL returns the upstream endpoint
func (c *Client) URL() string {
	return c.url
}

// Forward posts an opaque request body upstream. Only the headers in header
// are sent. Any upstream status is returned as a response, err is only set
// when no response was received.
func (c *Client) Forward(ctx context.Context, body []byte, header http.Header) (rsp *Response, err error) {
	rsp = &Response{}

	rsp.httpRequest, err = http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	for name, values := range header {
		for _, value := range values {
			rsp.httpRequest.Header.Add(name, value)
		}
	}

	if err = c.do(rsp); err != nil {
		return nil, err
	}

	return rsp, nil
}

// Request performs a typed request and decodes the GraphQL response
func (c *Client) Request(ctx context.Context, request Request) (rsp *Response, err error) {
	var body io.Reader
	rsp = &Response{}

	body, err = request.toReader()
	if err != nil {
		return
	}

	rsp.httpRequest, err = http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}
	rsp.httpRequest.Header.Set("Content-Type", "application/json")

	if err = c.do(rsp); err != nil {
		return
	}

	var grsp graphQLResponse
	if err = json.Unmarshal(rsp.rawResult, &grsp); err != nil {
		return
	}

	rsp.data = grsp.Data
	if len(grsp.Errors) > 0 {
		rsp.errors = grsp.Errors
	}

	if rsp.httpResponse.StatusCode != http.StatusOK {
		err = fmt.Errorf("%s", rsp.httpResponse.Status)
		return
	}

	return
}

func (c *Client) do(rsp *Response) (err error) {
	// apply before middleware
	for _, before := range c.before {
		if err = before(rsp.httpRequest); err != nil {
			return
		}
	}

	rsp.httpResponse, err = c.httpClient.Do(rsp.httpRequest)
	if err != nil {
		return
	}
	defer rsp.httpResponse.Body.Close()

	rsp.rawResult, err = io.ReadAll(rsp.httpResponse.Body)
	return
}
