// Package internal contains the core implementation packages for volki.
//
// # Package Organization
//
//   - route: pattern parsing and the routing trie
//   - scanner: discovery of handler files under pages/ and api/
//   - http11: request parsing, chunked bodies and response serialization
//   - router: handler registration and request dispatch
//   - static: static files below the public directory
//   - ratelimit: sliding window request limits
//   - server: accept loops, connection limits and the per-connection loop
//   - metrics: Prometheus collectors and the metrics listener
//   - watcher: debounced file-system change notification
//   - config: configuration loading and validation
//   - app: assembly of a runnable server from configuration
//   - errors, logging, version: shared infrastructure
//
// # Request Flow
//
// A connection accepted by server is admitted through its Limiter and
// served by one goroutine. The http11 parser reads each request under
// the read budget; router dispatches it to a handler, static file or
// error page; the serializer writes the response under the write
// budget. Requests on one connection are answered strictly in order.
//
// # Error Policy
//
// Parse failures answer with the matching 4xx status and close the
// connection. Handler failures and panics answer with an opaque 500 and
// close; the cause is logged. Startup failures such as conflicting route
// files are reported together, naming every offending file.
package internal
