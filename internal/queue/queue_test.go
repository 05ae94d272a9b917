package queue

import (
	"context"
	"testing"

	"judgecore/internal/platform/mq"
)

// fakeBroker is a minimal mq.MessageQueue test double recording Publish
// calls and letting tests drive Subscribe handlers directly.
type fakeBroker struct {
	published []*mq.Message
	handler   mq.HandlerFunc
	opts      *mq.SubscribeOptions
}

func (f *fakeBroker) Publish(ctx context.Context, topic string, message *mq.Message) error {
	f.published = append(f.published, message)
	return nil
}
func (f *fakeBroker) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	f.published = append(f.published, messages...)
	return nil
}
func (f *fakeBroker) Subscribe(ctx context.Context, topic string, handler mq.HandlerFunc) error {
	return f.SubscribeWithOptions(ctx, topic, handler, nil)
}
func (f *fakeBroker) SubscribeWithOptions(ctx context.Context, topic string, handler mq.HandlerFunc, opts *mq.SubscribeOptions) error {
	f.handler = handler
	f.opts = opts
	return nil
}
func (f *fakeBroker) Start() error  { return nil }
func (f *fakeBroker) Stop() error   { return nil }
func (f *fakeBroker) Pause() error  { return nil }
func (f *fakeBroker) Resume() error { return nil }
func (f *fakeBroker) Ping(ctx context.Context) error { return nil }
func (f *fakeBroker) Close() error  { return nil }

func TestJobQueue_Enqueue_PublishesCanonicalPayload(t *testing.T) {
	broker := &fakeBroker{}
	q := New(broker)

	job := JudgingJob{SubmissionID: "s1", UserID: "u1", ProblemID: "p1", LanguageID: "cpp17", SourceCode: "x"}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(broker.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(broker.published))
	}
	got, err := Unmarshal(broker.published[0].Body)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got != job {
		t.Errorf("published job = %+v, want %+v", got, job)
	}
	if broker.published[0].MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", broker.published[0].MaxRetries)
	}
}

func TestJobQueue_Consume_DecodesAndDispatches(t *testing.T) {
	broker := &fakeBroker{}
	q := New(broker)

	var received JudgingJob
	err := q.Consume(context.Background(), 4, func(ctx context.Context, job JudgingJob) error {
		received = job
		return nil
	})
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if broker.opts.PrefetchCount != 4 {
		t.Errorf("PrefetchCount = %d, want 4", broker.opts.PrefetchCount)
	}

	job := JudgingJob{SubmissionID: "s1", ProblemID: "p1", LanguageID: "cpp17"}
	body, _ := Marshal(job)
	if err := broker.handler(context.Background(), mq.NewMessage(body)); err != nil {
		t.Fatalf("handler returned error = %v", err)
	}
	if received != job {
		t.Errorf("received = %+v, want %+v", received, job)
	}
}

func TestJobQueue_Consume_MalformedPayloadDoesNotPanic(t *testing.T) {
	broker := &fakeBroker{}
	q := New(broker)

	if err := q.Consume(context.Background(), 1, func(ctx context.Context, job JudgingJob) error {
		t.Fatal("handler should not run for malformed payload")
		return nil
	}); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if err := broker.handler(context.Background(), mq.NewMessage([]byte("not json"))); err != nil {
		t.Errorf("handler error = %v, want nil (malformed payload is discarded, not retried)", err)
	}
}

func TestJobQueue_Consume_MissingFieldsDoesNotDispatch(t *testing.T) {
	broker := &fakeBroker{}
	q := New(broker)

	if err := q.Consume(context.Background(), 1, func(ctx context.Context, job JudgingJob) error {
		t.Fatal("handler should not run for a job missing required fields")
		return nil
	}); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	body, _ := Marshal(JudgingJob{SubmissionID: "s1"})
	if err := broker.handler(context.Background(), mq.NewMessage(body)); err != nil {
		t.Errorf("handler error = %v, want nil (invalid job is discarded, not retried)", err)
	}
}

func TestJobQueue_Close_ClosesBroker(t *testing.T) {
	broker := &fakeBroker{}
	q := New(broker)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
