// Package esp implements the RFC 4303 ESP datagram engine: header and
// padding codecs, encrypt-then-MAC pipelines, and the per-SA anti-replay
// window.
package esp
