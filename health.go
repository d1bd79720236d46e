package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/gqlclient"
)

const healthTimeout = 5 * time.Second

type healthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler reports whether the upstream engine answers a trivial query
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status, code := healthStatus{Status: "ok"}, http.StatusOK

	rsp, err := s.health.Request(ctx, gqlclient.Request{Query: "{ __typename }"})
	switch {
	case err != nil:
		status, code = healthStatus{Status: "unavailable", Error: err.Error()}, http.StatusServiceUnavailable
	case rsp.HasErrors():
		status, code = healthStatus{Status: "unavailable", Error: rsp.FirstError().Message}, http.StatusServiceUnavailable
	}

	if code != http.StatusOK {
		s.log.
			WithField("upstream", s.health.URL()).
			WithField("error", status.Error).
			Warnf("upstream health check failed")
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
