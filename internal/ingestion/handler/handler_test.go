package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

type fakePublisher struct {
	ingested []*ingestion.IngestRequest
	deleted  []string
	err      error
}

func (f *fakePublisher) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.ingested = append(f.ingested, req)
	return &ingestion.IngestResponse{DocumentID: req.ID, Status: "PENDING", ShardID: 1}, nil
}

func (f *fakePublisher) Delete(_ context.Context, id string) (*ingestion.IngestResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, id)
	return &ingestion.IngestResponse{DocumentID: id, Status: "DELETED", ShardID: 1}, nil
}

func newMux(t *testing.T, pub *fakePublisher) *http.ServeMux {
	t.Helper()
	s, err := schema.New([]schema.Field{
		{Name: "category", Type: schema.TypeString, Indexed: true},
		{Name: "price", Type: schema.TypeInt, Indexed: true},
	})
	require.NoError(t, err)
	h := New(pub, s)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestIngestAcceptsValidDocument(t *testing.T) {
	pub := &fakePublisher{}
	rec := do(newMux(t, pub), http.MethodPost, "/api/v1/documents",
		`{"id":"d1","fields":{"category":["books"],"price":["12"]}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ingestion.IngestResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "d1", resp.DocumentID)
	require.Len(t, pub.ingested, 1)
	assert.Equal(t, []string{"12"}, pub.ingested[0].Fields["price"])
}

func TestIngestRejectsBadInput(t *testing.T) {
	pub := &fakePublisher{}
	mux := newMux(t, pub)

	rec := do(mux, http.MethodPost, "/api/v1/documents", `{"fields":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodPost, "/api/v1/documents", `{"id":"d","fields":{"price":["ten"]}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "validation failed", body.Error)
	assert.Contains(t, body.Fields["fields.price"], "not a valid int")
	assert.Empty(t, pub.ingested)
}

func TestIngestMapsPublisherErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"conflict", apperrors.New(apperrors.ErrConflict, http.StatusConflict, "idempotency key already in use"),
			http.StatusConflict, "idempotency key already in use"},
		{"queue down", fmt.Errorf("queueing: %w", apperrors.ErrShardUnavailable), http.StatusServiceUnavailable, "ingestion failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newMux(t, &fakePublisher{err: tt.err}), http.MethodPost, "/api/v1/documents",
				`{"id":"d","fields":{"category":["a"]}}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
}

func TestDeleteDocument(t *testing.T) {
	pub := &fakePublisher{}
	rec := do(newMux(t, pub), http.MethodDelete, "/api/v1/documents/d9", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"d9"}, pub.deleted)

	missing := apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "document %q does not exist", "d9")
	rec = do(newMux(t, &fakePublisher{err: missing}), http.MethodDelete, "/api/v1/documents/d9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not exist")
}
