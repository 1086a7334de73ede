package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/caselens/timeline-back/internal/domain"
	"github.com/caselens/timeline-back/internal/repository"
	"github.com/caselens/timeline-back/internal/service"
	"github.com/caselens/timeline-back/internal/state"
)

const maxExtractedTextChars = 5 << 20

type registerDocumentRequest struct {
	OwnerID       string `json:"owner_id"`
	Filename      string `json:"filename"`
	ExtractedText string `json:"extracted_text"`
}

// Documents handles POST /v1/documents: register extracted text and trigger
// one pipeline run. Returns 202 immediately; clients poll the status URL.
func (api *API) Documents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	var request registerDocumentRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(request.OwnerID) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "owner_id is required")
		return
	}
	if len(request.ExtractedText) > maxExtractedTextChars {
		writeError(w, r, http.StatusRequestEntityTooLarge, "invalid_request", "extracted_text is too large")
		return
	}

	payloadHash := hashPayload(request)
	if idempotencyKey != "" {
		if entry, exists := api.idempotency.Get(idempotencyKey); exists {
			if entry.PayloadHash != payloadHash {
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
				return
			}
			writeAccepted(w, entry.DocumentID, entry.CreatedAt)
			return
		}
	}

	document, err := api.documents.Register(r.Context(), request.OwnerID, request.Filename, request.ExtractedText)
	if err != nil {
		if errors.Is(err, service.ErrEmptyOwner) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "owner_id is required")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to register document")
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Put(idempotencyKey, payloadHash, document.ID)
	}
	writeAccepted(w, document.ID, document.CreatedAt)
}

// DocumentResource dispatches GET /v1/documents/{id},
// GET /v1/documents/{id}/timeline and POST /v1/documents/{id}/submit.
func (api *API) DocumentResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	documentID, action, _ := strings.Cut(strings.Trim(rest, "/"), "/")
	if documentID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "document id is required")
		return
	}

	switch action {
	case "":
		api.documentStatus(w, r, documentID)
	case "timeline":
		api.documentTimeline(w, r, documentID)
	case "submit":
		api.documentSubmit(w, r, documentID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown document resource")
	}
}

func (api *API) documentStatus(w http.ResponseWriter, r *http.Request, documentID string) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	document, err := api.documents.GetDocument(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "document not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load document")
		return
	}

	response := map[string]any{
		"document_id": document.ID,
		"filename":    document.Filename,
		"status":      document.Status,
		"created_at":  document.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  document.UpdatedAt.Format(time.RFC3339Nano),
	}
	if strings.TrimSpace(document.ErrorMessage) != "" {
		response["error"] = map[string]any{
			"code":    "processing_error",
			"message": document.ErrorMessage,
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (api *API) documentTimeline(w http.ResponseWriter, r *http.Request, documentID string) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	document, timeline, err := api.documents.GetTimeline(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "document not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load timeline")
		return
	}
	if timeline == nil {
		switch document.Status {
		case domain.DocumentStatusFailed:
			writeError(w, r, http.StatusConflict, "processing_failed", document.ErrorMessage)
		default:
			w.Header().Set("Retry-After", "2")
			writeError(w, r, http.StatusConflict, "not_ready", "timeline is not ready yet")
		}
		return
	}

	events := make([]map[string]any, 0, len(timeline.Events))
	for _, event := range timeline.Events {
		events = append(events, map[string]any{
			"date":             event.Date,
			"description":      event.Description,
			"involved_parties": event.InvolvedParties,
			"significance":     event.Significance,
			"chunk_index":      event.ChunkIndex,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": timeline.DocumentID,
		"created_at":  timeline.CreatedAt.Format(time.RFC3339Nano),
		"events":      events,
	})
}

func (api *API) documentSubmit(w http.ResponseWriter, r *http.Request, documentID string) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	document, err := api.documents.Submit(r.Context(), documentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "document not found")
		case errors.Is(err, state.ErrAlreadyRunning):
			writeError(w, r, http.StatusConflict, "already_running", "a run is already processing this document")
		case errors.Is(err, state.ErrInvalidTransition):
			writeError(w, r, http.StatusConflict, "invalid_state", "document is not pending")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to submit document")
		}
		return
	}
	writeAccepted(w, document.ID, time.Now().UTC())
}

func writeAccepted(w http.ResponseWriter, documentID string, acceptedAt time.Time) {
	w.Header().Set("Retry-After", "2")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id": documentID,
		"status":      "pending",
		"status_url":  "/v1/documents/" + documentID,
		"accepted_at": acceptedAt.Format(time.RFC3339Nano),
	})
}
