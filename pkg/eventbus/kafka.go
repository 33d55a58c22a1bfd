// Package eventbus mirrors taxonomy events onto a kafka topic for
// consumers outside the gateway process.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nathan8299/foxbox/pkg/stream"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes taxonomy events to kafka, keyed by event kind.
type Publisher struct {
	writer kafkaWriter
}

func NewPublisher(cfg Config) (*Publisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
	}
	return &Publisher{writer: w}, nil
}

func (p *Publisher) Publish(ctx context.Context, evt stream.Event) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("kafka publisher not initialized")
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Kind),
		Value: value,
	})
}

// Forward drains a hub subscription into kafka until the context ends
// or the channel closes. Publish failures are returned to the caller's
// error callback; a nil callback drops them.
func (p *Publisher) Forward(ctx context.Context, events <-chan stream.Event, onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ctx, evt); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
