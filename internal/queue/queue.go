package queue

import (
	"context"

	"github.com/google/uuid"

	"judgecore/internal/platform/mq"
	"judgecore/pkg/utils/logger"
)

// JobQueue is the Coordinator's only dependency on the broker: enqueue a
// job, and register a handler that is invoked once per delivery. The
// underlying mq.MessageQueue supplies at-least-once delivery, the
// visibility-timeout equivalent (consumer prefetch plus unacked redelivery),
// explicit acknowledgement, and the bounded retry counter; this type just
// binds those primitives to the JudgingJob wire format.
type JobQueue struct {
	mq mq.MessageQueue

	// MaxRetries bounds per-message redelivery. Default 3 per spec. A message
	// that uses them all up is acked and republished to JobTopic+".failed";
	// the submission row is not updated by this package.
	MaxRetries int
}

// HandlerFunc processes one claimed JudgingJob. Returning an error signals
// a transient failure eligible for retry; the Coordinator itself decides
// permanent-vs-transient and should not return an error for conditions it
// has already finalized as a terminal submission error.
type HandlerFunc func(ctx context.Context, job JudgingJob) error

// New wraps an already-connected mq.MessageQueue (RabbitMQQueue or
// KafkaQueue) as a JobQueue.
func New(broker mq.MessageQueue) *JobQueue {
	return &JobQueue{mq: broker, MaxRetries: 3}
}

// Enqueue publishes a JudgingJob onto the job topic.
func (q *JobQueue) Enqueue(ctx context.Context, job JudgingJob) error {
	body, err := Marshal(job)
	if err != nil {
		return err
	}
	msg := mq.NewMessage(body)
	msg.ID = uuid.NewString()
	msg.MaxRetries = q.MaxRetries
	msg.SetHeader("submission_id", job.SubmissionID)
	return q.mq.Publish(ctx, JobTopic, msg)
}

// Consume registers handler against the job topic with the given prefetch
// count (the worker's visibility-timeout-equivalent concurrency cap) and
// starts the underlying broker consuming.
func (q *JobQueue) Consume(ctx context.Context, prefetch int, handler HandlerFunc) error {
	opts := &mq.SubscribeOptions{
		PrefetchCount:   prefetch,
		Concurrency:     prefetch,
		MaxRetries:      q.MaxRetries,
		DeadLetterTopic: JobTopic + ".failed",
	}
	wrapped := func(ctx context.Context, message *mq.Message) error {
		job, err := Unmarshal(message.Body)
		if err != nil {
			// Malformed payload is a permanent error: no amount of retry
			// fixes bad JSON, so the handler is not invoked at all.
			logger.Errorf(ctx, "discarding malformed judging job: %v", err)
			return nil
		}
		if err := job.Validate(); err != nil {
			logger.Errorf(ctx, "discarding judging job with missing fields: %v", err)
			return nil
		}
		return handler(ctx, job)
	}
	if err := q.mq.SubscribeWithOptions(ctx, JobTopic, wrapped, opts); err != nil {
		return err
	}
	return q.mq.Start()
}

// Close stops consumption and closes the underlying broker connection.
func (q *JobQueue) Close() error {
	return q.mq.Close()
}
