// Package panel serves the node's provisioning page as an embedded asset.
//
// The page lists nearby networks from GET /scan, submits credentials to
// POST /connect and shows live state from GET /status and the /ws feed.
// It is plain HTML and JavaScript compiled into the binary with go:embed,
// so an unprovisioned node needs nothing on disk to be configured.
//
// Unknown paths are answered with index.html. Phones and laptops probe
// well-known URLs when they join the node's access point; answering those
// with the page makes the operating system open it as a captive portal.
package panel
