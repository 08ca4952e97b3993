package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"campustrade/internal/app/dto"
	domainchat "campustrade/internal/domain/chat"
)

const headerEventType = "event_type"

const eventMessageInserted = "chat.message.inserted"

// Publisher is the subset of Producer the insert publisher needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// InsertPublisher sends stored messages to Kafka so every gateway instance can
// deliver them, keyed by conversation so one conversation stays ordered.
type InsertPublisher struct {
	Producer Publisher
	Topic    string
}

func (p InsertPublisher) PublishInsert(ctx context.Context, msg domainchat.Message) error {
	payload, err := json.Marshal(dto.FromMessage(msg))
	if err != nil {
		return err
	}
	if err := p.Producer.Publish(ctx, p.Topic, msg.ConversationID, payload, map[string]string{headerEventType: eventMessageInserted}); err != nil {
		return fmt.Errorf("publish insert: %w", err)
	}
	return nil
}

// InsertDeliverer receives inserts decoded from Kafka.
type InsertDeliverer interface {
	DeliverInsert(msg domainchat.Message)
}

// InsertHandler decodes insert records for the local gateway.
type InsertHandler struct {
	Deliverer InsertDeliverer
}

func (h InsertHandler) Handle(_ context.Context, record *sarama.ConsumerMessage) error {
	var payload dto.ChatMessage
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		return fmt.Errorf("decode insert: %w", err)
	}
	if payload.ID == "" || payload.ConversationID == "" {
		return fmt.Errorf("decode insert: missing ids")
	}
	h.Deliverer.DeliverInsert(payload.Domain())
	return nil
}
