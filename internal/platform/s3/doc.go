// Package s3 uploads run artifacts to S3 or an S3-compatible object store.
//
// The orchestrator keeps a transcript of every installer conversation on
// local disk. When an artifact bucket is configured the transcript is copied
// next to the cluster's provisioning state so failed runs can be inspected
// after the builder host is gone.
package s3
