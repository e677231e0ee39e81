// Package validation checks transfer inputs before any remote call is made.
//
// Bucket names follow the S3 DNS naming rules, object keys are checked for
// traversal sequences and control characters, and transfer tuning values
// (part size, task count) are checked against the multipart protocol limits.
// Every failure wraps one of the sentinels in the errors package.
package validation
