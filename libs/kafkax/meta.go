package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderAggregateID   = "aggregate_id"
)

// EventMeta is the metadata carried on every domain event message.
type EventMeta struct {
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
}

// Headers renders the non-empty fields as Kafka headers.
func (m EventMeta) Headers() []kafka.Header {
	pairs := [][2]string{
		{HeaderEventID, m.EventID},
		{HeaderEventType, m.EventType},
		{HeaderAggregateType, m.AggregateType},
		{HeaderAggregateID, m.AggregateID},
	}
	headers := make([]kafka.Header, 0, len(pairs))
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		headers = append(headers, kafka.Header{Key: p[0], Value: []byte(p[1])})
	}
	return headers
}

// ExtractEventMeta reads the metadata back, falling back to the message key
// for the event id and to the topic for the event type.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:       HeaderValue(msg.Headers, HeaderEventID),
		EventType:     HeaderValue(msg.Headers, HeaderEventType),
		AggregateType: HeaderValue(msg.Headers, HeaderAggregateType),
		AggregateID:   HeaderValue(msg.Headers, HeaderAggregateID),
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
