// Package api implements the HTTP REST API and WebSocket server for the tag
// registry.
//
// This package provides:
//   - REST endpoints for device creation and deletion, tag views, discovery
//     import, tag edits, removal and clear
//   - Change history of every mutation at /api/v1/audit
//   - WebSocket hub broadcasting live tag values on the "tag.values" channel
//   - JWT bearer authentication on mutating routes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The server is a thin layer over device.Registry. Handlers decode requests,
// call one registry operation and map its sentinel errors onto the structured
// error body. The registry persists every change before the handler returns.
//
// # Security
//
// When security.jwt.enabled is true, mutating routes require an
// "Authorization: Bearer" HS256 token whose role grants the route's
// permission. WebSocket clients pass the same token in the "token" query
// parameter. Device and tag reads are open; the audit log needs tag:read.
package api
