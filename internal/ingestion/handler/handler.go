// Package handler serves the document ingestion API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/logger"
)

// maxBodyBytes bounds a single ingestion request.
const maxBodyBytes = 4 << 20

// DocumentPublisher is implemented by *publisher.Publisher.
type DocumentPublisher interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
	Delete(ctx context.Context, id string) (*ingestion.IngestResponse, error)
}

type Handler struct {
	publisher DocumentPublisher
	schema    *schema.Schema
	logger    *slog.Logger
}

func New(pub DocumentPublisher, s *schema.Schema) *Handler {
	return &Handler{
		publisher: pub,
		schema:    s,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest serves POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req, h.schema); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req)
	if err != nil {
		h.fail(w, log, "ingestion failed", err)
		return
	}
	log.Info("document ingested", "doc_id", resp.DocumentID, "shard_id", resp.ShardID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Delete serves DELETE /api/v1/documents/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	resp, err := h.publisher.Delete(ctx, id)
	if err != nil {
		h.fail(w, log, "deletion failed", err)
		return
	}
	log.Info("document deletion queued", "doc_id", resp.DocumentID, "shard_id", resp.ShardID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) fail(w http.ResponseWriter, log *slog.Logger, message string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log.Error(message, "error", err, "status_code", status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && status < http.StatusInternalServerError {
		message = appErr.Message
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
