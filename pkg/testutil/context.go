package testutil

import (
	"net/http"

	id "certreg/pkg/domain"
	"certreg/pkg/requestcontext"
)

// WithCaller adds an authenticated principal to the request context, the
// way the auth middleware does.
func WithCaller(req *http.Request, caller id.Principal) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
