// Package multipart drives resumable multipart transfers.
//
// An Engine runs one state machine for every transfer kind:
//
//	Init -> ResumeCheck -> Scheduling -> Finalizing -> Completed | Aborted | Cancelled
//
// The kind-specific remote calls live behind PartOperations. Uploads send
// UploadPart requests, downloads issue ranged GetObject requests into a
// temporary file, and copies send UploadPartCopy requests. Progress is
// persisted to a checkpoint after every part so an interrupted transfer can
// be resumed by a later call with the same parameters.
package multipart
