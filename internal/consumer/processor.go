// Package consumer streams Kafka activity events into the recommendation pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/recommendation/internal/logger"
)

// Reader describes the kafka.Reader functions the processor interacts with.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler processes decoded Kafka messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message represents a decoded Kafka record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Payload   json.RawMessage
	Timestamp time.Time
	Headers   map[string]string
}

// Option configures processor behaviour.
type Option func(*Processor)

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithHandlerTimeout bounds a single message's handling.
func WithHandlerTimeout(d time.Duration) Option {
	return func(p *Processor) { p.handlerTimeout = d }
}

// WithFetchBackoff sets the pause after a failed fetch.
func WithFetchBackoff(d time.Duration) Option {
	return func(p *Processor) { p.fetchBackoff = d }
}

// Processor coordinates the consumer loop. Every fetched message is committed whether or
// not its handler succeeded, so one bad message never blocks the partition.
type Processor struct {
	reader         Reader
	handler        Handler
	logger         *logger.Logger
	handlerTimeout time.Duration
	fetchBackoff   time.Duration
}

// NewProcessor constructs a processor from a reader/handler pair.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:         reader,
		handler:        handler,
		logger:         logger.NewNop(),
		handlerTimeout: 2 * time.Minute,
		fetchBackoff:   time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes messages until ctx cancellation. A message already fetched when ctx is
// cancelled is still handled and committed under a detached, time-bounded context.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return err
			}
			recordFetchError()
			p.logger.Warn("fetch error", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.fetchBackoff):
			}
			continue
		}

		p.process(ctx, msg)
	}
}

func (p *Processor) process(ctx context.Context, msg kafka.Message) {
	decoded := Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Payload:   append(json.RawMessage{}, msg.Value...),
		Timestamp: msg.Time,
		Headers:   make(map[string]string, len(msg.Headers)),
	}
	for _, header := range msg.Headers {
		decoded.Headers[header.Key] = string(header.Value)
	}

	detached := context.WithoutCancel(ctx)
	handleCtx, cancel := context.WithTimeout(detached, p.handlerTimeout)
	err := p.handler.Handle(handleCtx, decoded)
	cancel()

	if err != nil {
		RecordFailed(decoded)
		p.logger.Error("handler error",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	} else {
		RecordProcessed(decoded)
		p.logger.Debug("processed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}

	commitCtx, commitCancel := context.WithTimeout(detached, 10*time.Second)
	defer commitCancel()
	if err := p.reader.CommitMessages(commitCtx, msg); err != nil {
		p.logger.Warn("commit error", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
}
