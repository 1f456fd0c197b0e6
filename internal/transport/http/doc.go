// Package http implements the job service's REST handlers on chi.
//
// JobsHandler serves the /jobs routes: POST /webhook (shared-secret auth),
// and, behind the bearer-token auth middleware, POST / (create), GET /
// (list), GET /{id}, POST /{id}/cancel and POST /{id}/retry. Request bodies
// are bound with render and checked with struct-tag validation; the work
// itself is delegated to the Dispatcher. HealthHandler serves /health and
// /ready.
//
// # Error Handling
//
// Errors are rendered as APIError JSON:
//
//	{
//	    "status_code": 400,
//	    "error_code": "...",
//	    "message": "...",
//	    "details": ...
//	}
//
// The /jobs/{id}/logs WebSocket endpoint is not in this package; it lives
// in package ws.
package http