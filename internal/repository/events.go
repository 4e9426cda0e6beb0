package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"bankledger/internal/model"

	"github.com/google/uuid"
)

// NewCashbackMessage builds the message announcing that txn was committed.
func NewCashbackMessage(txn model.Transaction) (Message, error) {
	event := model.CashbackRequested{
		EventID:       uuid.NewString(),
		TransactionID: txn.ID,
		AccountID:     txn.AccountID,
		Type:          txn.Type,
		Value:         txn.Value,
		CreatedAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return Message{}, fmt.Errorf("marshal cashback event: %w", err)
	}
	return Message{
		Topic: TopicCashbackRequested,
		Key:   fmt.Sprintf("cashback-%d", txn.ID),
		Data:  data,
	}, nil
}

// DecodeCashbackRequested parses a payload produced by NewCashbackMessage.
func DecodeCashbackRequested(data []byte) (model.CashbackRequested, error) {
	var event model.CashbackRequested
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("unmarshal cashback event: %w", err)
	}
	if event.TransactionID <= 0 {
		return event, fmt.Errorf("cashback event %q has no transaction id", event.EventID)
	}
	return event, nil
}
