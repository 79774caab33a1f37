// Package services holds the error taxonomy and context plumbing shared by
// the record-store client, the dispatcher, and the publish workflow.
package services
