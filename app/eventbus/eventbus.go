// Package eventbus publishes and consumes domain events over Watermill. The
// production transport is NATS; an in-process Go channel transport backs tests
// and single-node deployments.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// Metadata keys set on every published message.
const (
	MetadataTopic         = "topic"
	MetadataCorrelationID = "correlation_id"
)

// Config selects and configures the NATS transport.
type Config struct {
	URL string
	// NKeySeed authenticates the connection when set.
	NKeySeed string
	// QueueGroup load-balances subscribers of the same service.
	QueueGroup string
}

// Handler consumes one message. Returning an error nacks it.
type Handler = func(ctx context.Context, msg *message.Message) error

// EventBus publishes JSON payloads and dispatches received messages to handlers.
type EventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	js         jetstream.JetStream
	natsConn   *nc.Conn
	logger     *slog.Logger

	streamMutex    sync.Mutex
	createdStreams map[string]bool

	// sharedPubSub is set when one value backs both sides and must be closed once.
	sharedPubSub bool

	wg sync.WaitGroup
}

func natsOptions(cfg Config) ([]nc.Option, error) {
	opts := []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.Name("scorecard"),
	}
	if cfg.NKeySeed != "" {
		opt, err := nkeyOption(cfg.NKeySeed)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func nkeyOption(seed string) (nc.Option, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("invalid nkey seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive nkey public key: %w", err)
	}
	return nc.Nkey(pub, kp.Sign), nil
}

// New connects to NATS and builds a Watermill publisher and subscriber on it.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*EventBus, error) {
	opts, err := natsOptions(cfg)
	if err != nil {
		return nil, err
	}

	natsConn, err := nc.Connect(cfg.URL, opts...)
	if err != nil {
		logger.Error("Failed to connect to NATS", attr.Error(err))
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(natsConn)
	if err != nil {
		natsConn.Close()
		logger.Error("Failed to initialize JetStream", attr.Error(err))
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	watermillLogger := watermill.NewSlogLogger(logger)
	marshaler := &nats.NATSMarshaler{}
	jsConfig := nats.JetStreamConfig{Disabled: true}

	publisher, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         cfg.URL,
		Marshaler:   marshaler,
		NatsOptions: opts,
		JetStream:   jsConfig,
	}, watermillLogger)
	if err != nil {
		natsConn.Close()
		logger.Error("Failed to create Watermill publisher", attr.Error(err))
		return nil, fmt.Errorf("failed to create Watermill publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		CloseTimeout:     10 * time.Second,
		AckWaitTimeout:   30 * time.Second,
		Unmarshaler:      marshaler,
		NatsOptions:      opts,
		JetStream:        jsConfig,
	}, watermillLogger)
	if err != nil {
		_ = publisher.Close()
		natsConn.Close()
		logger.Error("Failed to create Watermill subscriber", attr.Error(err))
		return nil, fmt.Errorf("failed to create Watermill subscriber: %w", err)
	}

	return &EventBus{
		publisher:      publisher,
		subscriber:     subscriber,
		js:             js,
		natsConn:       natsConn,
		logger:         logger,
		createdStreams: make(map[string]bool),
	}, nil
}

// NewInMemory returns a bus backed by a Go channel pub/sub.
func NewInMemory(logger *slog.Logger) *EventBus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NewSlogLogger(logger))
	return &EventBus{
		publisher:      pubSub,
		subscriber:     pubSub,
		sharedPubSub:   true,
		logger:         logger,
		createdStreams: make(map[string]bool),
	}
}

// Instrument wraps the publisher and subscriber with Watermill's Prometheus
// metrics registered on reg. Call it before Subscribe.
func (eb *EventBus) Instrument(reg prometheus.Registerer) error {
	builder := metrics.NewPrometheusMetricsBuilder(reg, "scorecard", "eventbus")

	publisher, err := builder.DecoratePublisher(eb.publisher)
	if err != nil {
		return fmt.Errorf("failed to instrument publisher: %w", err)
	}
	subscriber, err := builder.DecorateSubscriber(eb.subscriber)
	if err != nil {
		return fmt.Errorf("failed to instrument subscriber: %w", err)
	}
	eb.publisher = publisher
	eb.subscriber = subscriber
	return nil
}

// Publish marshals payload as JSON and publishes it on topic. The context's
// correlation id travels in the message metadata.
func (eb *EventBus) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataTopic, topic)
	if id := attr.CorrelationID(ctx); id != "" {
		msg.Metadata.Set(MetadataCorrelationID, id)
	}

	if err := eb.publisher.Publish(topic, msg); err != nil {
		eb.logger.ErrorContext(ctx, "Failed to publish message",
			attr.String("topic", topic),
			attr.ExtractCorrelationID(ctx),
			attr.Error(err),
		)
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	eb.logger.DebugContext(ctx, "Message published",
		attr.String("topic", topic),
		attr.String("message_id", msg.UUID),
	)
	return nil
}

// Subscribe dispatches messages of topic to handler until ctx is cancelled.
// The handler's context carries the message's correlation id.
func (eb *EventBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	eb.logger.Info("Subscription started", attr.String("topic", topic))

	eb.wg.Go(func() {
		for msg := range messages {
			msgCtx := attr.WithCorrelationID(ctx, msg.Metadata.Get(MetadataCorrelationID))
			if err := handler(msgCtx, msg); err != nil {
				eb.logger.ErrorContext(msgCtx, "Handler error",
					attr.String("topic", topic),
					attr.String("message_id", msg.UUID),
					attr.ExtractCorrelationID(msgCtx),
					attr.Error(err),
				)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	})
	return nil
}

// EnsureStream makes JetStream retain subjects in the named stream, creating
// the stream or extending its subjects as needed. It is a no-op for the
// in-memory bus.
func (eb *EventBus) EnsureStream(ctx context.Context, streamName string, subjects ...string) error {
	if eb.js == nil {
		return nil
	}

	eb.streamMutex.Lock()
	defer eb.streamMutex.Unlock()

	if eb.createdStreams[streamName] {
		return nil
	}

	stream, err := eb.js.Stream(ctx, streamName)
	switch {
	case errors.Is(err, jetstream.ErrStreamNotFound):
		_, err = eb.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: subjects,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}
		eb.logger.Info("Stream created", attr.String("stream_name", streamName))
	case err != nil:
		return fmt.Errorf("failed to check if stream exists: %w", err)
	default:
		info, err := stream.Info(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stream info: %w", err)
		}
		missing := false
		for _, subject := range subjects {
			if !slices.Contains(info.Config.Subjects, subject) {
				info.Config.Subjects = append(info.Config.Subjects, subject)
				missing = true
			}
		}
		if missing {
			if _, err := eb.js.UpdateStream(ctx, info.Config); err != nil {
				return fmt.Errorf("failed to update stream with new subjects: %w", err)
			}
			eb.logger.Info("Stream updated with new subjects", attr.String("stream_name", streamName))
		}
	}

	eb.createdStreams[streamName] = true
	return nil
}

// Close closes the publisher, the subscriber and the NATS connection, then
// waits for running handlers.
func (eb *EventBus) Close() error {
	var errs []error
	if err := eb.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing publisher: %w", err))
	}
	if !eb.sharedPubSub {
		if err := eb.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing subscriber: %w", err))
		}
	}
	if eb.natsConn != nil {
		eb.natsConn.Close()
	}
	eb.wg.Wait()
	return errors.Join(errs...)
}
