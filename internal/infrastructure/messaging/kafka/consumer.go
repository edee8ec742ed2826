// Package kafka streams documents through the span detector: a consumer
// group reads records from one topic and a producer publishes results and
// dead letters.  Offsets are committed only after a record has been
// handled or dead-lettered, so delivery is at least once.
package kafka

import (
	"context"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeInternal, "consumer already running")

// Outcomes reported to an Observer.
const (
	OutcomeProcessed    = "processed"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeDropped      = "dropped"
)

// Dead letter headers.
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderError             = "x-error"
)

const fetchErrorBackoff = time.Second

// Message is a fetched record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Time      time.Time
}

// Handler processes one record.  Returning an error wrapped with Permanent
// skips the retries.
type Handler func(ctx context.Context, msg *Message) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Observer receives one outcome per handled record and one per retry.
type Observer interface {
	ObserveMessage(outcome string)
}

// RetryConfig defines retry behavior.  MaxRetries counts attempts after
// the first one.
type RetryConfig struct {
	MaxRetries      int
	Backoff         time.Duration
	MaxBackoff      time.Duration
	DeadLetterTopic string
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	Topic           string
	AutoOffsetReset string
	MinBytes        int
	MaxBytes        int
	MaxWait         time.Duration
	Security        SecurityConfig
	Retry           RetryConfig
}

// ConsumerStats is a point-in-time copy of the consumer counters.
type ConsumerStats struct {
	Consumed     int64
	Processed    int64
	Retried      int64
	DeadLettered int64
	Dropped      int64
	Lag          int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds records of one topic to a Handler, one at a time, which
// keeps per-partition order.
type Consumer struct {
	reader     ReaderInterface
	config     ConsumerConfig
	handler    Handler
	logger     logging.Logger
	deadLetter Publisher
	observer   Observer
	running    atomic.Bool

	consumed     atomic.Int64
	processed    atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
	dropped      atomic.Int64
	lag          atomic.Int64
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter publishes records that exhausted their retries to
// RetryConfig.DeadLetterTopic through p.
func WithDeadLetter(p Publisher) ConsumerOption {
	return func(c *Consumer) { c.deadLetter = p }
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) ConsumerOption {
	return func(c *Consumer) { c.observer = o }
}

// NewConsumer creates a group consumer for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger logging.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New(errors.ErrCodeInternal, "consumer handler is required")
	}
	dialer, err := cfg.Security.dialer()
	if err != nil {
		return nil, err
	}

	readerCfg := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
		Dialer:      dialer,
	}
	if readerCfg.MinBytes == 0 {
		readerCfg.MinBytes = 1
	}
	if readerCfg.MaxBytes == 0 {
		readerCfg.MaxBytes = 10 * 1024 * 1024
	}
	if readerCfg.MaxWait == 0 {
		readerCfg.MaxWait = time.Second
	}
	if cfg.AutoOffsetReset == "latest" {
		readerCfg.StartOffset = kafka.LastOffset
	}
	return newConsumer(kafka.NewReader(readerCfg), cfg, handler, logger, opts...), nil
}

func newConsumer(r ReaderInterface, cfg ConsumerConfig, handler Handler, logger logging.Logger, opts ...ConsumerOption) *Consumer {
	if cfg.Retry.Backoff <= 0 {
		cfg.Retry.Backoff = 500 * time.Millisecond
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	c := &Consumer{
		reader:  r,
		config:  cfg,
		handler: handler,
		logger:  logging.OrNop(logger).With(logging.String("topic", cfg.Topic), logging.String("group", cfg.GroupID)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is done or the reader is closed, returning nil in
// both cases.  It returns an error when an offset commit or a dead letter
// publish fails; the record is then redelivered after a restart.
func (c *Consumer) Run(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.logger.Info("kafka consumer started")
	defer c.logger.Info("kafka consumer stopped",
		logging.Int64("consumed", c.consumed.Load()),
		logging.Int64("processed", c.processed.Load()))

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Warn("fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		c.consumed.Add(1)
		if m.HighWaterMark > 0 {
			c.lag.Store(m.HighWaterMark - m.Offset - 1)
		}

		if err := c.process(ctx, fromKafkaMessage(m)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeMessagingUnavailable, "offset commit failed")
		}
	}
}

// process runs the handler with retries and dead-letters the record when
// they are exhausted.  A nil return means the record may be committed.
func (c *Consumer) process(ctx context.Context, msg *Message) error {
	err := c.handler(ctx, msg)
	backoff := c.config.Retry.Backoff
	for attempt := 0; err != nil && !IsPermanent(err) && attempt < c.config.Retry.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		c.retried.Add(1)
		c.observe(OutcomeRetried)
		err = c.handler(ctx, msg)
		backoff = min(backoff*2, c.config.Retry.MaxBackoff)
	}
	if err == nil {
		c.processed.Add(1)
		c.observe(OutcomeProcessed)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.logger.Error("message processing failed",
		logging.Int("partition", msg.Partition),
		logging.Int64("offset", msg.Offset),
		logging.Bool("permanent", IsPermanent(err)),
		logging.Err(err))
	return c.sendDeadLetter(ctx, msg, err)
}

func (c *Consumer) sendDeadLetter(ctx context.Context, msg *Message, cause error) error {
	topic := c.config.Retry.DeadLetterTopic
	if c.deadLetter == nil || topic == "" {
		c.dropped.Add(1)
		c.observe(OutcomeDropped)
		c.logger.Warn("message dropped", logging.Int64("offset", msg.Offset))
		return nil
	}

	headers := make(map[string]string, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = msg.Topic
	headers[HeaderOriginalPartition] = strconv.Itoa(msg.Partition)
	headers[HeaderOriginalOffset] = strconv.FormatInt(msg.Offset, 10)
	headers[HeaderError] = cause.Error()

	value := msg.Value
	if len(value) == 0 {
		value = []byte("{}")
	}
	if err := c.deadLetter.Publish(ctx, &ProducerMessage{
		Topic:   topic,
		Key:     msg.Key,
		Value:   value,
		Headers: headers,
	}); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagingUnavailable, "dead letter publish failed").
			WithDetail("offset=" + strconv.FormatInt(msg.Offset, 10))
	}
	c.deadLettered.Add(1)
	c.observe(OutcomeDeadLettered)
	return nil
}

func (c *Consumer) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveMessage(outcome)
	}
}

// Stats returns the consumer counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed:     c.consumed.Load(),
		Processed:    c.processed.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
		Dropped:      c.dropped.Load(),
		Lag:          c.lag.Load(),
	}
}

// Close closes the reader, which also stops a running Run.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// ValidateConsumerConfig validates configuration.
func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "group id required")
	}
	if cfg.Topic == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "topic required")
	}
	if cfg.AutoOffsetReset != "" && cfg.AutoOffsetReset != "earliest" && cfg.AutoOffsetReset != "latest" {
		return errors.Newf(errors.ErrCodeConfigInvalid, "invalid auto offset reset %q", cfg.AutoOffsetReset)
	}
	if cfg.Retry.MaxRetries < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "max retries must be >= 0")
	}
	if cfg.Retry.DeadLetterTopic != "" && cfg.Retry.DeadLetterTopic == cfg.Topic {
		return errors.New(errors.ErrCodeConfigInvalid, "dead letter topic must differ from the input topic")
	}
	return cfg.Security.Validate()
}
