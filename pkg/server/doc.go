// Package server provides the HTTP server of the policy registry.
//
// The server exposes the registry, the template catalog and the change
// journal over HTTP and streams registry snapshots as server-sent events.
// It owns the middleware chain and graceful shutdown; the components it
// serves are created by the caller and passed in as Dependencies.
//
// # Basic Usage
//
//	reg := registry.New(registry.WithLogger(logger))
//	srv := server.NewServer(cfg, server.Dependencies{
//	    Registry: reg,
//	    Catalog:  cat,
//	    Journal:  store, // nil when the journal is disabled
//	    Metrics:  collector,
//	    Logger:   logger,
//	})
//
//	// Blocks until ctx is cancelled, then shuts down gracefully.
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Streams
//
// GET /v1/policies/stream sends the current snapshot as the first event and
// then one "snapshot" event per registry publish:
//
//	id: 7
//	event: snapshot
//	data: {"version":7,"policies":{"github":{"mode":"full"}}}
//
// Each client has a bounded queue (registry.stream_buffer). A client that
// falls behind loses intermediate snapshots but always receives the latest
// one. Comment lines are sent every registry.stream_heartbeat to keep
// proxies from closing idle connections. Streams are exempt from the server
// write timeout and are closed when the server shuts down.
//
// # Shutdown
//
// Shutdown stops accepting connections, ends open streams and waits up to
// server.shutdown_timeout for in-flight requests.
package server
