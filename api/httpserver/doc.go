// Package httpserver provides the reusable HTTP server underneath the
// GeneMarket ledger and oracle services.
//
// BaseServer wires a chi router with the standard middleware stack, health
// and drain endpoints (/livez, /readyz, /drain, /undrain), an optional
// Prometheus metrics listener, optional pprof, and graceful shutdown.
// Components contribute their endpoints through the RouteRegistrar interface.
package httpserver
