package kafka

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// EnvelopeMessage encodes env for topic, keyed by order id so every event of
// an order lands on the same partition.
func EnvelopeMessage(topic string, env orders.Envelope) (kafka.Message, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode envelope")
	}
	return kafka.Message{
		Topic: topic,
		Key:   orders.PartitionKey(env.CorrelationID),
		Value: b,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(env.EventType)},
			{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
		},
	}, nil
}

func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return orders.Envelope{}, errors.Wrap(err, "decode envelope")
	}
	return env, nil
}

// UnwrapPayload decodes an envelope payload into T.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, errors.Wrap(err, "decode payload")
	}
	return t, nil
}
