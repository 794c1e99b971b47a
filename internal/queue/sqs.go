package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
)

// cancelMarkerTTL bounds how long a cancellation marker outlives its job.
const cancelMarkerTTL = 24 * time.Hour

// SQSQueue dispatches jobs to per-type SQS queues. Cancellation is a marker
// in redis keyed by the deterministic job ID; workers check the marker before
// starting work, so cancellation never interrupts a job already running.
type SQSQueue struct {
	client    *sqs.Client
	rdb       *redis.Client
	queueURLs map[JobType]string
}

// NewSQSQueue wires the dispatcher. queueURLs maps each job type to its
// queue.
func NewSQSQueue(client *sqs.Client, rdb *redis.Client, queueURLs map[JobType]string) *SQSQueue {
	return &SQSQueue{client: client, rdb: rdb, queueURLs: queueURLs}
}

func (q *SQSQueue) Enqueue(ctx context.Context, jobType JobType, payload Payload) (DispatchResult, error) {
	queueURL, ok := q.queueURLs[jobType]
	if !ok {
		return DispatchResult{}, fmt.Errorf("no queue configured for job type %q", jobType)
	}
	if payload.JobID == "" {
		payload.JobID = JobID(jobType, payload.SessionID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("marshal job payload: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	}
	if strings.HasSuffix(queueURL, ".fifo") {
		input.MessageGroupId = aws.String(string(jobType))
		input.MessageDeduplicationId = aws.String(payload.JobID)
	}

	out, err := q.client.SendMessage(ctx, input)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("dispatch %s job: %w", jobType, err)
	}

	result := DispatchResult{JobID: payload.JobID}
	if out.MessageId != nil {
		result.MessageID = *out.MessageId
	}
	return result, nil
}

// Cancel writes the cancellation marker. It reports whether the signal was
// recorded, never whether the worker stopped.
func (q *SQSQueue) Cancel(ctx context.Context, jobID string, jobType JobType) (bool, error) {
	if err := q.rdb.Set(ctx, cancelKey(jobID), "1", cancelMarkerTTL).Err(); err != nil {
		return false, fmt.Errorf("record cancellation for %s: %w", jobID, err)
	}
	return true, nil
}

// IsCancelled is the worker-side check for a cancellation marker.
func (q *SQSQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := q.rdb.Exists(ctx, cancelKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func cancelKey(jobID string) string {
	return "jobs:cancelled:" + jobID
}
