package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher drivers.
const (
	DriverLog     = "log"
	DriverChannel = "gochannel"
	DriverRedis   = "redis"
)

// zerologAdapter routes watermill logging through zerolog.
type zerologAdapter struct {
	log zerolog.Logger
}

// NewLoggerAdapter wraps l as a watermill logger.
func NewLoggerAdapter(l zerolog.Logger) watermill.LoggerAdapter {
	return zerologAdapter{log: l}
}

func (a zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (a zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (a zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (a zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (a zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{log: a.log.With().Fields(map[string]any(fields)).Logger()}
}

// NewChannelPubSub creates an in-process pub/sub for events. Subscribers
// attached before publishing receive every event.
func NewChannelPubSub(l zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewLoggerAdapter(l))
}

// NewRedisPublisher creates a publisher that appends events to a redis stream
// named after the topic.
func NewRedisPublisher(client goredis.UniversalClient, l zerolog.Logger) (message.Publisher, error) {
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, NewLoggerAdapter(l))
	if err != nil {
		return nil, fmt.Errorf("create redis stream publisher: %w", err)
	}
	return pub, nil
}

// NewRedisSubscriber creates a subscriber reading events from redis streams as
// a member of group. An empty group reads without a consumer group.
func NewRedisSubscriber(client goredis.UniversalClient, group, consumer string, l zerolog.Logger) (message.Subscriber, error) {
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      consumer,
	}, NewLoggerAdapter(l))
	if err != nil {
		return nil, fmt.Errorf("create redis stream subscriber: %w", err)
	}
	return sub, nil
}

// EnsureGroupAtTail creates group on the topic stream starting at the tail, so a
// new reader only sees events published after it joined.
func EnsureGroupAtTail(ctx context.Context, client goredis.UniversalClient, topic, group string) error {
	err := client.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", group, err)
	}
	return nil
}

// Config selects and configures a sink.
type Config struct {
	Driver    string
	Topic     string
	RedisAddr string
}

// NewSink builds the sink for cfg. The returned close function releases any
// publisher and is safe to call when nothing was opened.
func NewSink(ctx context.Context, cfg Config, l zerolog.Logger) (Sink, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "", DriverLog:
		return LogSink{Logger: l}, noop, nil
	case DriverChannel:
		ps := NewChannelPubSub(l)
		return Multi{LogSink{Logger: l}, NewPublisherSink(ps, cfg.Topic)}, ps.Close, nil
	case DriverRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("connect analytics redis %s: %w", cfg.RedisAddr, err)
		}
		pub, err := NewRedisPublisher(client, l)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		closeAll := func() error {
			perr := pub.Close()
			if cerr := client.Close(); perr == nil {
				perr = cerr
			}
			return perr
		}
		return NewPublisherSink(pub, cfg.Topic), closeAll, nil
	default:
		return nil, noop, fmt.Errorf("unknown analytics driver %q", cfg.Driver)
	}
}
