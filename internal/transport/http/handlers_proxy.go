package httptransport

import (
	"errors"
	"io"
	"net/http"

	"civicgate/internal/circuit"
	dErrors "civicgate/pkg/domain-errors"
	"civicgate/pkg/platform/httputil"
)

const maxProxyBody = 1 << 20 // 1 MiB

// handleKnowledgeSearch forwards a search query to the knowledge service.
func (h *Handler) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	h.proxyGraphQL(w, r, "knowledge-search", h.downstreamURLs.KnowledgeSearchURL)
}

// handleCivicRecords forwards a regional civic-records query.
func (h *Handler) handleCivicRecords(w http.ResponseWriter, r *http.Request) {
	h.proxyGraphQL(w, r, "civic-records", h.downstreamURLs.CivicRecordsURL)
}

// handleDocuments forwards a documents query.
func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	h.proxyGraphQL(w, r, "documents", h.downstreamURLs.DocumentsURL)
}

// proxyGraphQL relays the request body downstream through the circuit breaker
// and signed-request client. A tripped breaker surfaces as a distinct
// dependency-unavailable error so callers can tell "known bad, fast-failed"
// from a one-off downstream failure.
func (h *Handler) proxyGraphQL(w http.ResponseWriter, r *http.Request, service, targetURL string) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBody))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
		return
	}

	respBody, status, err := h.downstream.PostJSON(ctx, service, targetURL, body)
	if err != nil {
		var openErr *circuit.OpenError
		if errors.As(err, &openErr) {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable,
				openErr.Service+" is temporarily unavailable"))
			return
		}
		h.logger.ErrorContext(ctx, "downstream call failed", "service", service, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "downstream call failed"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}
