// Package internal contains private implementation details for the s3transfer module.
// These packages are not intended for external use and may change without notice.
//
// The internal packages are organized as follows:
//   - transfer: part planning, event delivery and the multipart state machine
//   - checkpoint: durable transfer records
//   - ratelimit: byte throttling shared across transfers
//   - pool: bounded part execution and buffer reuse
//   - validation: input validation logic
//   - config: CLI configuration
package internal
