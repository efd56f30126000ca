package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to JetStream subjects and feeds raw messages
// into the engine's ingestion loop. The oracle feed is the high-volume
// surface; direct deposits share the same at-least-once pipeline.
type NATSSubscriber struct {
	js        jetstream.JetStream
	msgChan   chan<- RawMessage
	consumers []jetstream.ConsumeContext
}

// RawMessage is a delivered-but-unparsed feed message, ready for the
// shell to parse into an operation before submitting to the engine.
type RawMessage struct {
	Subject   string
	Kind      string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the engine accepted (or deduped) the operation
	NakFunc   func() // NAK on parse or retryable failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to operation kinds.
type SubjectConfig struct {
	Subject      string
	Kind         string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "insurix.flights.report", Kind: KindFlightReport, ConsumerName: "ledger-flight-reports", StreamName: "INSURIX_FLIGHTS"},
		{Subject: "insurix.flights.batch", Kind: KindFlightReportBatch, ConsumerName: "ledger-flight-batches", StreamName: "INSURIX_FLIGHTS"},
		{Subject: "insurix.deposits.>", Kind: KindDirectDeposit, ConsumerName: "ledger-deposits", StreamName: "INSURIX_DEPOSITS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, msgChan chan<- RawMessage) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		msgChan: msgChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		kind := cfg.Kind
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawMessage{
				Subject:   msg.Subject(),
				Kind:      kind,
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.msgChan <- raw:
				// Queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "INSURIX_FLIGHTS",
			Subjects:  []string{"insurix.flights.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "INSURIX_DEPOSITS",
			Subjects:  []string{"insurix.deposits.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
