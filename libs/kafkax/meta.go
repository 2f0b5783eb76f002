package kafkax

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
)

// EventMeta is the metadata carried on every Kafka message the booking service emits.
type EventMeta struct {
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
}

// NewMessage builds a message for meta.EventType keyed by the aggregate id, so
// all events of one appointment land on the same partition.
func NewMessage(ctx context.Context, meta EventMeta, payload []byte) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(meta.EventID)},
		{Key: "event_type", Value: []byte(meta.EventType)},
	}
	if meta.AggregateType != "" {
		headers = append(headers, kafka.Header{Key: "aggregate_type", Value: []byte(meta.AggregateType)})
	}
	key := meta.AggregateID
	if key == "" {
		key = meta.EventID
	}
	return kafka.Message{
		Topic:   meta.EventType,
		Key:     []byte(key),
		Value:   payload,
		Headers: InjectTraceHeaders(ctx, headers),
	}
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:       HeaderValue(msg.Headers, "event_id"),
		EventType:     HeaderValue(msg.Headers, "event_type"),
		AggregateType: HeaderValue(msg.Headers, "aggregate_type"),
		AggregateID:   string(msg.Key),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
