// Package payments carries outbound fund movements across the settlement
// boundary. The ledger itself never holds custody; it instructs the
// settlement layer and treats a failed instruction as a failed transfer.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Instruction is the wire form of one outbound payment.
type Instruction struct {
	InstructionID uuid.UUID `json:"instruction_id"`
	Party         uuid.UUID `json:"party"`
	Amount        int64     `json:"amount"`
	Memo          string    `json:"memo"`
	IssuedAt      time.Time `json:"issued_at"`
}

// NATSGateway publishes payment instructions to the settlement layer via
// JetStream. A publish that is not accepted by the stream is a transfer
// failure: the engine rolls the operation back and the caller retries.
type NATSGateway struct {
	js      jetstream.JetStream
	subject string
	timeout time.Duration
	logger  zerolog.Logger
}

const defaultPublishTimeout = 5 * time.Second

func NewNATSGateway(js jetstream.JetStream, logger zerolog.Logger) *NATSGateway {
	return &NATSGateway{
		js:      js,
		subject: "insurix.payments.outbound",
		timeout: defaultPublishTimeout,
		logger:  logger,
	}
}

// Transfer publishes one payment instruction and waits for stream ack.
func (g *NATSGateway) Transfer(ctx context.Context, party uuid.UUID, amount int64, memo string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	instr := Instruction{
		InstructionID: uuid.New(),
		Party:         party,
		Amount:        amount,
		Memo:          memo,
		IssuedAt:      time.Now(),
	}

	data, err := json.Marshal(instr)
	if err != nil {
		return fmt.Errorf("marshal instruction: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if _, err := g.js.Publish(pubCtx, g.subject, data); err != nil {
		g.logger.Error().
			Err(err).
			Str("party", party.String()).
			Int64("amount", amount).
			Msg("payment instruction rejected")
		return fmt.Errorf("publish payment instruction: %w", err)
	}

	g.logger.Debug().
		Str("instruction_id", instr.InstructionID.String()).
		Str("party", party.String()).
		Int64("amount", amount).
		Str("memo", memo).
		Msg("payment instruction published")

	return nil
}

// EnsurePaymentStream creates the outbound payments stream. Instructions
// use a WorkQueue retention so the settlement layer consumes each exactly
// once.
func EnsurePaymentStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "INSURIX_PAYMENTS",
		Subjects:  []string{"insurix.payments.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create payments stream: %w", err)
	}
	return nil
}
