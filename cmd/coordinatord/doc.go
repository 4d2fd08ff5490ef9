// Package main is the entry point for the GatorGuard coordinator daemon.
//
// The daemon owns the extension's durable state (focus mode, submode,
// lyrics preference, recent links) and serves a WebSocket bus that
// popup views, overlay agents, and the browser bridge connect to.
// Navigation events from the bridge flow through a settle-delay monitor
// into the classification pipeline, and blur or unblur instructions are
// pushed back to the overlay in whichever tab is active when the
// verdict lands.
//
// Configuration comes from environment variables with CLI flags as
// overrides:
//
//	# Production mode
//	./coordinatord -port 8900 -remote http://localhost:3000
//
//	# Development mode (colored logs, debug level)
//	./coordinatord -dev
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
