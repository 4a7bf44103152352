package testutil

import (
	"net/http"

	"airdrop/pkg/domain"
	"airdrop/pkg/requestcontext"
)

// WithPrincipal authenticates req as p, as the auth middleware would.
// A zero principal leaves the request anonymous.
func WithPrincipal(req *http.Request, p domain.Principal) *http.Request {
	if p.IsNil() {
		return req
	}
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// WithRequestID sets the request id, as the request id middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
