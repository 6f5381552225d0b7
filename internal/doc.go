// Package internal contains private implementation details for rangefetch.
// These packages are not intended for external use and may change without notice.
//
// The internal packages are organized as follows:
//   - backend: the capability interfaces and one implementation per store
//   - engine: bounded fan-out with a single retry
//   - registry: shared backend clients keyed by configuration
//   - listing: continuation-token pagination
//   - transfer: multipart upload sessions
//   - validation: path and key checks
//   - pool: buffer reuse when draining response bodies
package internal
