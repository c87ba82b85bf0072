// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maciejossss/spikss-sub002/internal/auth"
)

// HTTPHandlers exposes the sync engine over HTTP.
type HTTPHandlers struct {
	service     *SyncService
	broadcaster *Broadcaster
	logger      *slog.Logger

	// Heartbeat interval for SSE keepalives. Half-open connections are
	// detected when the keepalive write fails.
	Heartbeat time.Duration
}

// NewHTTPHandlers creates the handler set.
func NewHTTPHandlers(service *SyncService, broadcaster *Broadcaster, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{
		service:     service,
		broadcaster: broadcaster,
		logger:      logger,
		Heartbeat:   25 * time.Second,
	}
}

// batchProcessor is one entity type's batch entry point.
type batchProcessor func(ctx context.Context, raw []map[string]any) (*BatchResult, error)

// handleBatch decodes a record array, runs the processor and writes either
// the success stats or the full conflict report with queue-paused semantics.
func (h *HTTPHandlers) handleBatch(w http.ResponseWriter, r *http.Request, kind EntityKind, process batchProcessor) {
	var raw []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON array of records")
		return
	}

	result, err := process(r.Context(), raw)
	if err != nil {
		h.logger.Error("Batch processing failed", "entity", kind, "error", err)
		h.writeError(w, http.StatusInternalServerError, "sync_failed", "failed to process batch")
		return
	}

	if result.Rejected() {
		h.writeJSON(w, http.StatusConflict, ConflictResponse{
			Success:   false,
			Error:     ErrCodeQueuePaused,
			Conflicts: result.Conflicts,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, BatchResponse{Success: true, Stats: result.Stats})
}

// HandleSyncTechnicians processes POST /sync/technicians.
func (h *HTTPHandlers) HandleSyncTechnicians(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, KindTechnician, h.service.ProcessTechnicianBatch)
}

// HandleSyncClients processes POST /sync/clients.
func (h *HTTPHandlers) HandleSyncClients(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, KindClient, h.service.ProcessClientBatch)
}

// HandleSyncDevices processes POST /sync/devices.
func (h *HTTPHandlers) HandleSyncDevices(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, KindDevice, h.service.ProcessDeviceBatch)
}

// HandleSyncOrders processes POST /sync/orders.
func (h *HTTPHandlers) HandleSyncOrders(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, KindOrder, h.service.ProcessOrderBatch)
}

// HandleListPendingChanges processes GET /pending-changes.
func (h *HTTPHandlers) HandleListPendingChanges(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.ListPendingChanges(r.Context())
	if err != nil {
		h.logger.Error("List pending changes failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "list_failed", "failed to list pending changes")
		return
	}
	if pending == nil {
		pending = []*PendingChange{}
	}
	h.writeJSON(w, http.StatusOK, PendingChangeListResponse{PendingChanges: pending})
}

// HandleProposeChange processes POST /pending-changes.
func (h *HTTPHandlers) HandleProposeChange(w http.ResponseWriter, r *http.Request) {
	var req ProposeChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse proposal")
		return
	}
	kind := EntityKind(req.EntityType)
	if req.EntityID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "entity_id is required")
		return
	}

	proposer, _ := auth.ActorID(r.Context())
	pc, err := h.service.ProposeChange(r.Context(), kind, req.EntityID, req.Patch, proposer)
	switch {
	case errors.Is(err, ErrUnsupportedEntity):
		h.writeError(w, http.StatusBadRequest, "unsupported_entity", fmt.Sprintf("entity type %q does not accept pending changes", req.EntityType))
	case errors.Is(err, ErrEmptyPatch):
		h.writeError(w, http.StatusBadRequest, "empty_patch", "patch contains no applicable fields")
	case errors.Is(err, ErrMissingExternalID):
		h.writeError(w, http.StatusConflict, "missing_external_id", "target entity was never synchronized")
	case errors.Is(err, ErrEntityGone):
		h.writeError(w, http.StatusNotFound, "entity_not_found", "target entity does not exist")
	case err != nil:
		h.logger.Error("Propose change failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "propose_failed", "failed to store proposal")
	default:
		h.writeJSON(w, http.StatusCreated, pc)
	}
}

// HandleAcceptChange processes POST /pending-changes/{id}/accept.
func (h *HTTPHandlers) HandleAcceptChange(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pendingID(w, r)
	if !ok {
		return
	}
	err := h.service.AcceptChange(r.Context(), id)
	switch {
	case errors.Is(err, ErrPendingNotFound):
		h.writeError(w, http.StatusNotFound, "pending_change_not_found", "no such pending change")
	case errors.Is(err, ErrEntityGone):
		// The proposal has been terminally rejected; tell the reviewer the
		// target is gone.
		h.writeError(w, http.StatusNotFound, "entity_not_found", "target entity no longer exists; proposal rejected")
	case errors.Is(err, ErrAlreadyDecided):
		h.writeError(w, http.StatusConflict, "already_decided", "pending change was already decided")
	case err != nil:
		h.logger.Error("Accept change failed", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "accept_failed", "failed to accept pending change")
	default:
		h.writeJSON(w, http.StatusOK, OKResponse{Success: true})
	}
}

// HandleRejectChange processes POST /pending-changes/{id}/reject.
func (h *HTTPHandlers) HandleRejectChange(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pendingID(w, r)
	if !ok {
		return
	}
	err := h.service.RejectChange(r.Context(), id)
	switch {
	case errors.Is(err, ErrPendingNotFound):
		h.writeError(w, http.StatusNotFound, "pending_change_not_found", "no such pending change")
	case errors.Is(err, ErrAlreadyDecided):
		h.writeError(w, http.StatusConflict, "already_decided", "pending change was already accepted")
	case err != nil:
		h.logger.Error("Reject change failed", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "reject_failed", "failed to reject pending change")
	default:
		h.writeJSON(w, http.StatusOK, OKResponse{Success: true})
	}
}

func (h *HTTPHandlers) pendingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleOrderStatus processes POST /orders/{number}/status.
func (h *HTTPHandlers) HandleOrderStatus(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	var req OrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse status request")
		return
	}
	if req.Status == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}

	transition := &OrderTransition{
		OrderNumber: number,
		Status:      req.Status,
		Technician:  TechnicianRefFromValue(req.Technician),
		StartedAt:   req.StartedAt,
		CompletedAt: req.CompletedAt,
		LaborHours:  req.LaborHours,
		TotalCost:   req.TotalCost,
		WorkNotes:   req.WorkNotes,
		PhotoRefs:   req.PhotoRefs,
		Parts:       req.Parts,
	}
	err := h.service.TransitionOrder(r.Context(), transition)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order_not_found", "no such service order")
	case errors.Is(err, ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case err != nil:
		h.logger.Error("Order transition failed", "order_number", number, "error", err)
		h.writeError(w, http.StatusInternalServerError, "transition_failed", "failed to transition order")
	default:
		h.writeJSON(w, http.StatusOK, OKResponse{Success: true})
	}
}

// HandleEvents serves GET /events as a server-sent event stream. A keepalive
// comment goes out every heartbeat interval; when it can no longer be
// written the subscriber is pruned.
func (h *HTTPHandlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(sub)

	interval := h.Heartbeat
	if interval <= 0 {
		interval = 25 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to encode event", "type", event.Type, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleNotify processes POST /notify by fanning the event out to all
// subscribers. Always accepted: delivery is best-effort by contract.
func (h *HTTPHandlers) HandleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse notification")
		return
	}
	if req.Type == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "type is required")
		return
	}
	h.broadcaster.Notify(req.Type, req.Data)
	h.writeJSON(w, http.StatusAccepted, OKResponse{Success: true})
}

// HandleHealth is an unauthenticated liveness probe.
func (h *HTTPHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a standardized error response.
func (h *HTTPHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSONError(w, statusCode, errorCode, message)
	h.logger.Debug("HTTP error response",
		"status_code", statusCode, "error_code", errorCode, "message", message)
}

func writeJSONError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message})
}
