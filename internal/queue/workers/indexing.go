// Package workers holds the asynq task handlers run by the worker binary.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/chatdocs/internal/document"
	"github.com/nikhilbhutani/chatdocs/internal/models"
	"github.com/nikhilbhutani/chatdocs/internal/queue"
	"github.com/nikhilbhutani/chatdocs/internal/rag"
)

// IndexingWorker extracts text from an uploaded file and feeds it into the
// vector index. The document's status tracks progress so the UI can show
// when it becomes searchable.
type IndexingWorker struct {
	docSvc   *document.Service
	pipeline *rag.Pipeline
}

func NewIndexingWorker(docSvc *document.Service, pipeline *rag.Pipeline) *IndexingWorker {
	return &IndexingWorker{docSvc: docSvc, pipeline: pipeline}
}

func (w *IndexingWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIndexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document ID: %w", err)
	}

	slog.Info("indexing document", "document_id", docID, "chat_id", payload.ChatID)

	if err := w.docSvc.UpdateStatus(ctx, docID, models.DocStatusProcessing); err != nil {
		return fmt.Errorf("update status to processing: %w", err)
	}

	doc, err := w.docSvc.GetByID(ctx, docID)
	if err != nil {
		w.fail(ctx, docID)
		return fmt.Errorf("get document: %w", err)
	}

	text, err := w.docSvc.ExtractText(ctx, doc)
	if err != nil {
		w.fail(ctx, docID)
		return fmt.Errorf("extract text: %w", err)
	}

	if err := w.pipeline.IndexDocument(ctx, docID.String(), text, payload.ChatID, doc.Filename, "upload"); err != nil {
		w.fail(ctx, docID)
		return fmt.Errorf("index document: %w", err)
	}

	if err := w.docSvc.UpdateStatus(ctx, docID, models.DocStatusIndexed); err != nil {
		return fmt.Errorf("update status to indexed: %w", err)
	}

	slog.Info("document indexed", "document_id", docID)
	return nil
}

func (w *IndexingWorker) fail(ctx context.Context, docID uuid.UUID) {
	if err := w.docSvc.UpdateStatus(ctx, docID, models.DocStatusFailed); err != nil {
		slog.Error("mark document failed", "document_id", docID, "error", err)
	}
}
