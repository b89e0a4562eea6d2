// Package notify runs outbound notification delivery off the request path.
//
// A [Queue] is a bounded buffer drained by a fixed worker pool. Submission
// never blocks: a full buffer drops the task and counts it. Handler errors
// are logged and counted, never surfaced to the submitter.
package notify
