// Package http implements the minimal HTTP/1.1 client capfetch uses to pull
// resources straight off a TCP or TLS stream.
//
// It does not use the standard library's HTTP stack. Instead it provides:
//   - HeaderMap, a canonicalizing header container with ordered dump and
//     lenient line parsing
//   - URL splitting into scheme, host, port and path
//   - GET request serialization with a randomized User-Agent
//   - A response Reader that walks status line, header block and a
//     Content-Length delimited body, bounding every read with a timeout
//   - A Dialer with optional custom DNS, SOCKS5 proxying and browser TLS
//     fingerprints
//
// Redirects, chunked transfer encoding, compression and connection reuse are
// not supported. Each Get opens exactly one connection.
package http
