// Package pool runs the part operations of a transfer with bounded
// concurrency and supplies reusable part buffers.
//
// Parts are dispatched in ascending order but complete in any order. A
// failed part stops further dispatch without interrupting parts already in
// flight; cancelling the context interrupts everything.
package pool
