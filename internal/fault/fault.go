// Package fault defines the error taxonomy shared across the pipeline.
// Callers classify with errors.Is; layers wrap with fmt.Errorf("%w").
package fault

import (
	"errors"
	"net/http"
)

var (
	// ErrQueueUnavailable: the Redis backing store is unreachable. Transient;
	// submitters may retry.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrUnknownComplaintType: submission type outside {text,voice,image,video}.
	// Permanent, rejected before a job is created.
	ErrUnknownComplaintType = errors.New("unknown complaint type")

	// ErrUnknownJob: job id never issued or purged after retention expiry.
	ErrUnknownJob = errors.New("unknown job")

	// ErrUnknownComplaint: complaint id not present in the system of record.
	ErrUnknownComplaint = errors.New("unknown complaint")

	// ErrAnalyzer: an analyzer's external call failed. Retried via Nack up to
	// the job's max attempts.
	ErrAnalyzer = errors.New("analyzer failure")

	// ErrRelationalWrite: the system-of-record insert failed. Fails the job.
	ErrRelationalWrite = errors.New("relational write failure")

	// ErrIndexWrite: the search index write failed. Logged and deferred to
	// reconciliation; never fails the job.
	ErrIndexWrite = errors.New("search index write failure")

	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInvalidSubmission = errors.New("invalid submission")
)

// HTTPStatus maps a pipeline error onto a gateway response code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownJob), errors.Is(err, ErrUnknownComplaint):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownComplaintType), errors.Is(err, ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
