// Package checkpoint persists the progress of resumable transfers.
//
// A checkpoint file is either absent or holds a complete, valid record: every
// update rewrites the whole record to a temporary file in the same directory
// and renames it over the previous one. Loading never fails a transfer; a
// file that cannot be read, parsed, validated or matched is reported as
// unusable and the caller starts over.
package checkpoint
