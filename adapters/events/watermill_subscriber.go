package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

// WatermillSubscriber feeds revocations published by any instance into a handler
type WatermillSubscriber struct {
	subscriber message.Subscriber
	topic      string
	logger     *zap.Logger
}

// NewWatermillSubscriber creates a new Watermill subscriber
func NewWatermillSubscriber(subscriber message.Subscriber, topic string, logger *zap.Logger) *WatermillSubscriber {
	if topic == "" {
		topic = DefaultRevocationTopic
	}
	return &WatermillSubscriber{
		subscriber: subscriber,
		topic:      topic,
		logger:     logger,
	}
}

// Run consumes revocations until ctx is done. Undecodable messages are acked
// and dropped; handler failures are nacked for redelivery.
func (s *WatermillSubscriber) Run(ctx context.Context, handle ports.RevocationHandler) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
	}

	for msg := range messages {
		var entry core.RevocationEntry
		if err := json.Unmarshal(msg.Payload, &entry); err != nil || entry.ID == "" {
			s.logger.Warn("dropping malformed revocation event", zap.String("message_id", msg.UUID), zap.Error(err))
			msg.Ack()
			continue
		}

		if err := handle(ctx, entry); err != nil {
			s.logger.Error("failed to apply revocation event", zap.String("id", entry.ID), zap.Error(err))
			msg.Nack()
			continue
		}
		msg.Ack()
	}

	return nil
}
