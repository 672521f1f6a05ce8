// Package retry retries operations with exponential backoff.
//
// [WithExponentialBackoff] is used for calls to remote services whose
// failures are usually transient, such as the transcript upload. Errors
// wrapped with [Fatal] stop the retry loop immediately.
package retry
