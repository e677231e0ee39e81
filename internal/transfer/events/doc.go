// Package events turns transfer progress into listener notifications.
//
// Listener callbacks are isolated: a panicking listener is logged and
// ignored, and never changes the outcome of the transfer. Progress never
// decreases within one call and reaches 1 only after the transfer completed.
package events
