package mq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	amqpHeaderID         = "x-message-id"
	amqpHeaderPriority   = "x-message-priority"
	amqpHeaderRetryCount = "x-retry-count"
	amqpHeaderMaxRetries = "x-max-retries"
	amqpHeaderExpiration = "x-message-expiration-ms"

	dlxSuffix    = ".dlx"
	dlqSuffix    = ".dlq"
	retrySuffix  = ".retry"
)

// RabbitMQConfig configures the RabbitMQ-backed MessageQueue.
type RabbitMQConfig struct {
	URL string

	// PrefetchCount bounds in-flight unacked deliveries per consumer, acting
	// as the visibility-timeout equivalent: a worker that dies mid-job
	// leaves its delivery unacked, and RabbitMQ redelivers it to the next
	// consumer once the connection drops. Default 1 for fair dispatch.
	PrefetchCount int

	// ReconnectDelay defaults to 2s. The queue dials once in
	// NewRabbitMQQueue and does not reconnect, so the value is not used.
	ReconnectDelay time.Duration
}

// RabbitMQQueue implements MessageQueue over a single AMQP 0-9-1 connection.
// Each topic is a durable queue reached through the default exchange by its
// name, with a matching dead-letter exchange/queue pair. A delivery that
// exhausts MaxRetries is acked and republished to
// SubscribeOptions.DeadLetterTopic when one is set.
type RabbitMQQueue struct {
	config RabbitMQConfig

	mu      sync.Mutex
	conn    *amqp.Connection
	pubCh   *amqp.Channel
	closed  bool
	paused  atomic.Bool
	started bool

	subscriptions []*rabbitSubscription
}

type rabbitSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	ch     *amqp.Channel
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRabbitMQQueue dials url and returns a ready-to-use queue. The producer
// channel is opened eagerly; consumer channels are opened per subscription
// in Start.
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = 1
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	return &RabbitMQQueue{config: cfg, conn: conn, pubCh: pubCh}, nil
}

func (r *RabbitMQQueue) declareTopology(ch *amqp.Channel, topic string, deadLetterTopic string) error {
	dlx := topic + dlxSuffix
	dlq := topic + dlqSuffix
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx: %w", err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq: %w", err)
	}
	if err := ch.QueueBind(dlq, "", dlx, false, nil); err != nil {
		return fmt.Errorf("bind dlq: %w", err)
	}

	args := amqp.Table{"x-dead-letter-exchange": dlx}
	if _, err := ch.QueueDeclare(topic, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}

	if deadLetterTopic != "" && deadLetterTopic != dlq {
		if _, err := ch.QueueDeclare(deadLetterTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead letter topic %s: %w", deadLetterTopic, err)
		}
	}
	return nil
}

// Publish publishes one message to topic, declaring the queue (and its
// dead-letter pair) first if it does not already exist.
func (r *RabbitMQQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("message queue is closed")
	}
	if err := r.declareTopology(r.pubCh, topic, ""); err != nil {
		return err
	}
	return r.pubCh.PublishWithContext(ctx, "", topic, false, false, toAMQPPublishing(message))
}

// PublishBatch publishes each message individually; AMQP 0-9-1 has no
// native batch-publish primitive, so batching here buys nothing over a loop.
func (r *RabbitMQQueue) PublishBatch(ctx context.Context, topic string, messages []*Message) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if len(messages) == 0 {
		return errors.New("messages are required")
	}
	for _, msg := range messages {
		if err := r.Publish(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe subscribes to topic with default options.
func (r *RabbitMQQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	return r.SubscribeWithOptions(ctx, topic, handler, nil)
}

// SubscribeWithOptions registers a subscription. If the queue is already
// started, consumption begins immediately; otherwise it starts on Start.
func (r *RabbitMQQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.PrefetchCount <= 0 {
		options.PrefetchCount = r.config.PrefetchCount
	}

	sub := &rabbitSubscription{topic: topic, handler: handler, opts: options, baseCtx: ctx}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("message queue is closed")
	}
	r.subscriptions = append(r.subscriptions, sub)
	if r.started {
		return r.startSubscription(sub)
	}
	return nil
}

// Start begins consuming for every registered subscription.
func (r *RabbitMQQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("message queue is closed")
	}
	if r.started {
		return nil
	}
	for _, sub := range r.subscriptions {
		if err := r.startSubscription(sub); err != nil {
			return err
		}
	}
	r.started = true
	return nil
}

func (r *RabbitMQQueue) startSubscription(sub *rabbitSubscription) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	if err := r.declareTopology(ch, sub.topic, sub.opts.DeadLetterTopic); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(sub.opts.PrefetchCount, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(sub.topic, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume %s: %w", sub.topic, err)
	}
	sub.ch = ch
	if sub.baseCtx == nil {
		sub.baseCtx = context.Background()
	}
	sub.ctx, sub.cancel = context.WithCancel(sub.baseCtx)

	workerCount := sub.opts.Concurrency
	if workerCount <= 0 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			for {
				select {
				case <-sub.ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					if r.paused.Load() {
						_ = d.Nack(false, true)
						continue
					}
					r.handleDelivery(sub, d)
				}
			}
		}()
	}
	return nil
}

func (r *RabbitMQQueue) handleDelivery(sub *rabbitSubscription, d amqp.Delivery) {
	m := fromAMQPDelivery(d)
	if m.MaxRetries == 0 {
		m.MaxRetries = sub.opts.MaxRetries
	}
	if m.Expiration == 0 && sub.opts.MessageTTL > 0 {
		m.Expiration = sub.opts.MessageTTL
	}
	if m.Expiration > 0 && !m.Timestamp.IsZero() && time.Since(m.Timestamp) > m.Expiration {
		_ = d.Ack(false)
		return
	}

	if err := sub.handler(sub.ctx, m); err == nil {
		_ = d.Ack(false)
		return
	}

	m.IncrementRetry()
	if !m.ShouldRetry() {
		// Exhausted retries: ack the original so it leaves the queue, then
		// publish to the explicit dead-letter topic if one is configured.
		// The queue's own x-dead-letter-exchange still catches Nacks from
		// handlers that bypass this path (e.g. a crashed worker).
		if sub.opts.DeadLetterTopic != "" {
			_ = r.Publish(sub.ctx, sub.opts.DeadLetterTopic, m)
		}
		_ = d.Ack(false)
		return
	}

	// Requeue with an incremented retry header: republish rather than Nack
	// because Nack-requeue redelivers the same headers forever, and the
	// at-least-once contract needs the retry count visible to the consumer.
	if err := r.Publish(sub.ctx, sub.topic, m); err != nil {
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Stop cancels all subscriptions and waits for in-flight handlers to return.
func (r *RabbitMQQueue) Stop() error {
	r.mu.Lock()
	subs := append([]*rabbitSubscription(nil), r.subscriptions...)
	r.mu.Unlock()

	for _, sub := range subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range subs {
		sub.wg.Wait()
		if sub.ch != nil {
			_ = sub.ch.Close()
		}
	}

	r.mu.Lock()
	r.started = false
	r.mu.Unlock()
	return nil
}

// Pause stops handlers from processing new deliveries; in-flight deliveries
// already pulled off the channel still complete.
func (r *RabbitMQQueue) Pause() error {
	r.paused.Store(true)
	return nil
}

// Resume resumes delivery processing after Pause.
func (r *RabbitMQQueue) Resume() error {
	r.paused.Store(false)
	return nil
}

// Ping verifies the underlying connection is open.
func (r *RabbitMQQueue) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Close stops all subscriptions and closes the connection.
func (r *RabbitMQQueue) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	_ = r.Stop()
	if r.pubCh != nil {
		_ = r.pubCh.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func toAMQPPublishing(message *Message) amqp.Publishing {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	headers := amqp.Table{}
	for k, v := range message.Headers {
		headers[k] = v
	}
	if message.ID != "" {
		headers[amqpHeaderID] = message.ID
	}
	if message.Priority != 0 {
		headers[amqpHeaderPriority] = strconv.Itoa(int(message.Priority))
	}
	headers[amqpHeaderRetryCount] = strconv.Itoa(message.RetryCount)
	if message.MaxRetries != 0 {
		headers[amqpHeaderMaxRetries] = strconv.Itoa(message.MaxRetries)
	}
	if message.Expiration > 0 {
		headers[amqpHeaderExpiration] = strconv.FormatInt(message.Expiration.Milliseconds(), 10)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         message.Body,
		Headers:      headers,
		Timestamp:    message.Timestamp,
		MessageId:    message.ID,
	}
}

func fromAMQPDelivery(d amqp.Delivery) *Message {
	m := &Message{
		ID:        d.MessageId,
		Body:      d.Body,
		Headers:   make(map[string]string),
		Timestamp: d.Timestamp,
	}
	for k, v := range d.Headers {
		switch k {
		case amqpHeaderID:
			if s, ok := v.(string); ok {
				m.ID = s
			}
		case amqpHeaderPriority:
			if v, ok := toInt(v); ok {
				m.Priority = uint8(v)
			}
		case amqpHeaderRetryCount:
			if v, ok := toInt(v); ok {
				m.RetryCount = v
			}
		case amqpHeaderMaxRetries:
			if v, ok := toInt(v); ok {
				m.MaxRetries = v
			}
		case amqpHeaderExpiration:
			if v, ok := toInt(v); ok {
				m.Expiration = time.Duration(v) * time.Millisecond
			}
		default:
			if s, ok := v.(string); ok {
				m.Headers[k] = s
			}
		}
	}
	return m
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
