package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stacklok/balancer/internal/admission"
	"github.com/stacklok/balancer/internal/dispatch"
	"github.com/stacklok/balancer/internal/metrics"
	"github.com/stacklok/balancer/pkg/logger"
)

const maxRequestBodyBytes = 32 << 20 // 32 MiB, defensive cap on an opaque body

// NewProxyHandler builds the handler for one service class's forwarding
// endpoint: admit a node, dispatch to it, relay the result verbatim.
func NewProxyHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		class := deps.Registry.Class()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if len(body) > maxRequestBodyBytes {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		admitStart := time.Now()
		id, endpointURL, err := deps.Admission.Admit(r.Context())
		metrics.ObserveAdmissionWait(class, time.Since(admitStart).Seconds())
		if err != nil {
			if errors.Is(err, admission.ErrNoCapacity) {
				metrics.ObserveRequest(class, metrics.OutcomeNoCapacity)
				msg := fmt.Sprintf("no capacity for service %s within %s", class, deps.Admission.QueueTimeout)
				http.Error(w, msg, http.StatusServiceUnavailable)
				return
			}
			// Client disconnected or request context otherwise cancelled
			// while queueing; no node was occupied, nothing to clean up.
			metrics.ObserveRequest(class, metrics.OutcomeClientGone)
			return
		}

		dispatchStart := time.Now()
		result, err := deps.Dispatcher.Dispatch(r.Context(), deps.Registry, id, endpointURL, body)
		metrics.ObserveDispatch(class, time.Since(dispatchStart).Seconds())
		if err != nil {
			logger.Warnw("dispatch failed", "node_id", id, "class", class, "error", err)
			metrics.ObserveRequest(class, metrics.OutcomeBackendErr)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if result.StatusCode >= 200 && result.StatusCode < 300 {
			metrics.ObserveRequest(class, metrics.OutcomeSuccess)
		} else {
			metrics.ObserveRequest(class, metrics.OutcomeBackendErr)
		}

		w.WriteHeader(result.StatusCode)
		_, _ = w.Write(result.Body)
	}
}
