// Package httpmiddleware provides composable net/http middleware: panic
// recovery, request ids, CORS, rate limiting, request logging, and API-key
// authentication.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h so that the first middleware in the list is
// the outermost, i.e. the first to see a request.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
