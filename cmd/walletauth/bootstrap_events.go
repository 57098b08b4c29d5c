package main

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/internal/config"
	"github.com/layer-3/walletauth/internal/obs"
	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

type eventBus struct {
	Publisher  ports.EventPublisher
	Subscriber *events.WatermillSubscriber

	closers []func() error
}

func (b *eventBus) Close() {
	for _, closeFn := range b.closers {
		_ = closeFn()
	}
}

// initEvents wires the revocation topic. redisstream fans out to every
// instance; gochannel only loops back into this process.
func initEvents(cfg *config.Config, st *stores, logger *zap.Logger) (*eventBus, error) {
	wmLogger := obs.NewWatermillLogger(logger.Named("watermill"))

	if cfg.Events.Driver != config.EventsRedisStream {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		return &eventBus{
			Publisher:  events.NewWatermillPublisher(pubSub, cfg.Events.Topic),
			Subscriber: events.NewWatermillSubscriber(pubSub, cfg.Events.Topic, logger),
			closers:    []func() error{pubSub.Close},
		}, nil
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: st.Redis,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}

	// Config validation keeps the consumer group empty, so every instance
	// reads every revocation
	subscriber, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        st.Redis,
			ConsumerGroup: cfg.Events.ConsumerGroup,
		},
		wmLogger,
	)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create Redis subscriber: %w", err)
	}

	return &eventBus{
		Publisher:  events.NewWatermillPublisher(publisher, cfg.Events.Topic),
		Subscriber: events.NewWatermillSubscriber(subscriber, cfg.Events.Topic, logger),
		closers:    []func() error{subscriber.Close, publisher.Close},
	}, nil
}
