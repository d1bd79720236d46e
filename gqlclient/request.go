package gqlclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

const defaultRequestTimeout = 10

// BeforeFunc modifies the request before it is sent
type BeforeFunc func(req *http.Request) error

// WithHeader returns a BeforeFunc that sets a header on every request
func WithHeader(name, value string) BeforeFunc {
	return func(req *http.Request) error {
		req.Header.Set(name, value)
		return nil
	}
}

// Request a typed GraphQL request
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// converts the request to an io.Reader
func (r *Request) toReader() (body io.Reader, err error) {
	var j []byte
	j, err = json.Marshal(r)
	if err != nil {
		return
	}

	body = bytes.NewBuffer(j)
	return
}
