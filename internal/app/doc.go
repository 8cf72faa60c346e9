// Package app wires the key service together and manages its lifecycle.
//
// NewApplication opens the configured key store, builds the key manager,
// the webhook notifier, the event hub and the sweep scheduler, and mounts
// the HTTP API on a chi router. Start serves until its context is
// cancelled; Run does the same until SIGINT or SIGTERM.
//
// Shutdown order: HTTP server, event hub, webhook queue, key store,
// telemetry providers.
package app
