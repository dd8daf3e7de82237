// Package consumer applies documents from the document-ingest topic to the
// shards hosted by this node and marks them indexed in the document ledger.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

// StatusRecorder updates a document's status in the ledger. The postgres
// implementation is DocumentLedger; nil disables recording.
type StatusRecorder interface {
	RecordStatus(ctx context.Context, docID, status string) error
}

// HandleMessage returns the handler that applies one document event.
// Invalid documents are marked FAILED and skipped so they cannot block the
// partition.
func HandleMessage(engine *indexer.Engine, ledger StatusRecorder) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		doc, err := kafka.DecodeJSON[proto.Document](value)
		if err != nil {
			logger.Error("failed to decode document", "error", err, "key", string(key))
			return err
		}
		applied, err := engine.Apply(doc)
		if err != nil {
			record(ctx, ledger, doc.ID, "FAILED", logger)
			if errors.Is(err, apperrors.ErrInvalidInput) {
				return fmt.Errorf("%w: %w", kafka.ErrSkip, err)
			}
			return err
		}
		if !applied {
			return nil
		}
		status := "INDEXED"
		if doc.Deleted {
			status = "DELETED"
		}
		record(ctx, ledger, doc.ID, status, logger)
		logger.Debug("document applied", "doc_id", doc.ID, "status", status)
		return nil
	}
}

func record(ctx context.Context, ledger StatusRecorder, docID, status string, logger *slog.Logger) {
	if ledger == nil {
		return
	}
	if err := ledger.RecordStatus(ctx, docID, status); err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}
