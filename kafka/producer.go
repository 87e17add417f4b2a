package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apex/log"
	skafka "github.com/segmentio/kafka-go"

	"trashdrop/events"
)

// Writer is the subset of kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Producer writes request events keyed by request id, so every event of a
// request lands on the same partition in order.
type Producer struct {
	writer Writer
}

func NewProducer(brokerURL, topic string) *Producer {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokerURL),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &Producer{writer: w}
}

// NewProducerWithWriter allows injecting a test writer.
func NewProducerWithWriter(w Writer) *Producer {
	return &Producer{writer: w}
}

// Publish implements events.Publisher.
func (p *Producer) Publish(ctx context.Context, e events.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Failed to marshal kafka value: %v", err)
		return err
	}
	msg := skafka.Message{
		Key:   []byte(e.RequestID),
		Value: b,
		Headers: []skafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
		Time: e.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.WithField("id", e.RequestID).Errorf("Kafka write error: %v", err)
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
