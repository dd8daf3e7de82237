// Package ingestion defines the request and response types of the document
// ingestion API.
package ingestion

// IngestRequest is the JSON body accepted by POST /api/v1/documents. An
// empty ID is replaced by a generated one.
type IngestRequest struct {
	ID             string              `json:"id"`
	Fields         map[string][]string `json:"fields"`
	IdempotencyKey string              `json:"idempotency_key"`
}

// IngestResponse is returned once a write is recorded and queued for the
// shard that owns it.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ShardID    int    `json:"shard_id"`
}
