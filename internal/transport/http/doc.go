// Package http implements the HTTP handlers of the key service. Handlers
// stay thin: they decode and validate the request, call the service layer
// and render the result.
//
// # Request Flow
//
//	HTTP Request → Chi Router → Middleware → Handler → KeyService → Manager → Store
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Error Handling
//
// Every failure is rendered by the shared ErrorHandler as an RFC 7807
// problem document:
//
//	{
//	    "type": "/errors/key/not-found",
//	    "title": "Key Not Found",
//	    "status": 404,
//	    "detail": "key not found",
//	    "instance": "/api/revoke"
//	}
//
// # WebSocket Support
//
// GET /api/events upgrades to a websocket and attaches the connection to
// the event hub, which pushes every key event to the subscriber.
package http
