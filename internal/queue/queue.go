package queue

import (
	"context"
	"fmt"
)

// JobType names the out-of-process work this service dispatches.
type JobType string

const (
	JobTypeAnalysis JobType = "analysis"
	JobTypeVideo    JobType = "video"
	JobTypeReport   JobType = "report"
)

// AllJobTypes lists every job a session may have in flight, in the order
// RetentionManager cancels them.
var AllJobTypes = []JobType{JobTypeVideo, JobTypeAnalysis, JobTypeReport}

// JobID builds the deterministic job identifier for a session. Dispatch and
// cancellation both go through this function so the two can never drift.
func JobID(jobType JobType, sessionID string) string {
	return fmt.Sprintf("%s-%s", jobType, sessionID)
}

// Payload is the job description handed to a worker.
type Payload struct {
	JobID        string `json:"jobId"`
	SessionID    string `json:"sessionId"`
	SessionToken string `json:"sessionToken"`
	KeypointsRef string `json:"keypointsRef,omitempty"`
	VideoRef     string `json:"videoRef,omitempty"`
}

// DispatchResult reports a successful enqueue.
type DispatchResult struct {
	JobID     string
	MessageID string
}

// Queue accepts typed job descriptions and supports best-effort cancellation
// by deterministic job ID. Cancel means "signal sent", not "work stopped".
type Queue interface {
	Enqueue(ctx context.Context, jobType JobType, payload Payload) (DispatchResult, error)
	Cancel(ctx context.Context, jobID string, jobType JobType) (bool, error)
}
