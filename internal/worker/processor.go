package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/internal/service"
)

// Processor turns cashback request payloads into ApplyCashback calls. It is
// shared by every bus consumer (JetStream, gRPC EventService, local channel).
type Processor struct {
	svc service.LedgerService
}

func NewProcessor(svc service.LedgerService) *Processor {
	return &Processor{svc: svc}
}

// Handle applies the cashback described by data. A transaction whose cashback
// was already applied counts as success so redeliveries can be acked.
func (p *Processor) Handle(ctx context.Context, data []byte) error {
	event, err := repository.DecodeCashbackRequested(data)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	_, err = p.svc.ApplyCashback(ctx, event.TransactionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrCashbackAlreadyApplied):
		slog.Info("worker: cashback already applied, skipping",
			"event_id", event.EventID,
			"transaction_id", event.TransactionID,
		)
		return nil
	default:
		return fmt.Errorf("worker: apply cashback for transaction %d: %w", event.TransactionID, err)
	}
}
