package consumer

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/postgres"
)

// DocumentLedger records status changes in the documents table.
type DocumentLedger struct {
	db *postgres.Client
}

// NewDocumentLedger wraps db.
func NewDocumentLedger(db *postgres.Client) *DocumentLedger {
	return &DocumentLedger{db: db}
}

// RecordStatus sets the status of docID.
func (l *DocumentLedger) RecordStatus(ctx context.Context, docID, status string) error {
	_, err := l.db.DB.ExecContext(ctx,
		`UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, docID,
	)
	return err
}
