// Package http11 implements the HTTP/1.1 wire layer of volki: request
// parsing under hard resource limits, chunked bodies, the ordered header
// multimap, and response serialization.
//
// The parser never sets deadlines itself. The connection owner arms read
// deadlines around ReadHead and ReadBody and maps timeouts reported here
// (KindRequestTimeout) onto its own policy.
package http11
