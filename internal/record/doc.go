// Package record defines the job-record model read from the remote store,
// the readiness predicate, and the content fingerprint used to re-locate a
// record after its store-assigned identity drifts.
package record
