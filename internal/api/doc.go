// Package api implements the node's local HTTP server.
//
// This package provides:
//   - The provisioning portal: GET /scan and POST /connect, served only
//     while the node is in PROVISIONING (409 otherwise)
//   - GET /status and GET /api/v1/health for local diagnostics
//   - POST /reset to forget the stored network
//   - A WebSocket hub at /ws broadcasting display frames and connectivity
//     transitions to subscribed clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// The server is lifecycle-managed like the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Any other path serves the embedded provisioning page, so phones that
// join the node's access point open it as a captive portal.
package api
