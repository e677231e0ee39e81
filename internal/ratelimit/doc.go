// Package ratelimit provides a token-bucket throttle for transfer byte streams.
//
// A single Limiter is shared by every part of a transfer, so it bounds the
// aggregate throughput rather than the throughput of one part. Readers and
// writers built here are the only place a transfer is throttled.
package ratelimit
