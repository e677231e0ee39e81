// Package s3transfer provides resumable multipart transfers for S3-compatible
// object stores.
//
// A Client uploads local files, downloads objects and copies objects
// server-side by splitting them into parts that run concurrently. With a
// checkpoint the progress of a transfer is recorded after every part, so a
// cancelled or failed transfer can be resumed by calling the same operation
// again with the same checkpoint.
//
// Key features:
//   - Upload, Download and Copy with configurable part size and concurrency
//   - Crash-safe JSON checkpoints and automatic resume
//   - Lifecycle events and monotonic progress per transfer
//   - A shared token-bucket rate limiter for byte throughput
//   - Single-shot PutObject with byte-level status events
//
// Example usage:
//
//	client, err := s3transfer.New(s3transfer.WithRegion("us-west-2"))
//	if err != nil {
//	    return err
//	}
//
//	result, err := client.Upload(ctx, "my-bucket", "backups/db.tar", "/var/backups/db.tar",
//	    s3transfer.WithPartSize(16*1024*1024),
//	    s3transfer.WithTaskNum(4),
//	    s3transfer.WithCheckpoint("/var/lib/s3transfer/"),
//	)
//	if err != nil {
//	    var te *errors.TransferError
//	    if stderrors.As(err, &te) && te.Resumable() {
//	        // call Upload again with the same checkpoint to resume
//	    }
//	    return err
//	}
package s3transfer
