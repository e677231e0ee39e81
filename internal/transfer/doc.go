// Package transfer groups the pieces of a resumable transfer.
//
// The planner splits an object into parts, events reports progress to
// listeners, and multipart drives uploads, downloads and copies through their
// lifecycle on top of the checkpoint store and the task pool.
package transfer
