package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes applied notifications to NATS for external
// indexers. Publishing happens after the engine emitted the notification;
// indexers verify completeness via the state-hash chain.
// Subjects follow the pattern: insurix.ledger.events.{notification_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableNotification
}

// PublishableNotification is an applied notification ready for outbound
// publishing.
type PublishableNotification struct {
	Sequence  int64       `json:"sequence"`
	Type      string      `json:"type"`
	OpKey     string      `json:"op_key"`
	PolicyID  uint64      `json:"policy_id,omitempty"`
	Payload   interface{} `json:"payload"`
	StateHash []byte      `json:"state_hash"`
	PrevHash  []byte      `json:"prev_hash"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableNotification) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (p *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, n); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", n.Sequence, err)
				// Non-fatal: indexers can read the notification log directly
			}
		}
	}
}

func (p *OutboundPublisher) publish(ctx context.Context, n PublishableNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := fmt.Sprintf("insurix.ledger.events.%s", n.Type)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "INSURIX_LEDGER_EVENTS",
		Subjects:  []string{"insurix.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream INSURIX_LEDGER_EVENTS")
	return nil
}
