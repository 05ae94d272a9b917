package events

import (
	"context"
	"encoding/json"
	"time"

	"judgecore/internal/model"
	"judgecore/internal/platform/mq"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

// MQPublisher publishes submission lifecycle events to a message queue.
// It satisfies coordinator.Publisher structurally, matching how this tree
// prefers narrow consumer interfaces over a shared events package import.
type MQPublisher struct {
	mq    mq.MessageQueue
	topic string
}

// NewMQPublisher binds an already-connected broker to a single topic. A
// worker that wants per-topic routing instead of one combined topic can
// construct three of these, one per Topic constant.
func NewMQPublisher(broker mq.MessageQueue, topic string) *MQPublisher {
	return &MQPublisher{mq: broker, topic: topic}
}

// PublishQueued announces that a job has been accepted onto the queue,
// before any worker has claimed it.
func (p *MQPublisher) PublishQueued(ctx context.Context, submissionID string) error {
	return p.publish(ctx, Event{Topic: TopicSubmissionQueued, SubmissionID: submissionID})
}

// PublishJudgingRequested announces that a worker has claimed the job and
// is about to compile it.
func (p *MQPublisher) PublishJudgingRequested(ctx context.Context, submissionID string) error {
	return p.publish(ctx, Event{Topic: TopicJudgingRequested, SubmissionID: submissionID})
}

// PublishJudged announces a submission's terminal outcome. This is the
// method the Coordinator depends on (coordinator.Publisher); its signature
// intentionally excludes per-test detail, which observers can fetch from
// the Repository if they need it.
func (p *MQPublisher) PublishJudged(ctx context.Context, submissionID string, status model.Status, verdict model.Verdict) error {
	return p.publish(ctx, Event{
		Topic:        TopicSubmissionJudged,
		SubmissionID: submissionID,
		Status:       status,
		Verdict:      verdict,
	})
}

func (p *MQPublisher) publish(ctx context.Context, event Event) error {
	if p == nil || p.mq == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("event publisher is not configured")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	event.CreatedAt = time.Now().Unix()

	payload, err := json.Marshal(event)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "marshal %s event failed", event.Topic)
	}
	message := mq.NewMessage(payload)
	message.ID = submissionEventID(event)
	message.SetHeader("submission_id", event.SubmissionID)
	message.SetHeader("topic", string(event.Topic))

	if err := p.mq.Publish(ctx, p.topic, message); err != nil {
		logger.Warnf(ctx, "publish %s event for %s failed: %v", event.Topic, event.SubmissionID, err)
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish %s event failed", event.Topic)
	}
	return nil
}

func submissionEventID(event Event) string {
	return string(event.Topic) + ":" + event.SubmissionID
}
