package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/repositories"
	"github.com/prudhvinik1/possync/internal/services"
)

// SyncHandler exposes the sync engine over REST.
type SyncHandler struct {
	queue     *services.QueueService
	processor *services.Processor
	delta     *services.DeltaService
}

func NewSyncHandler(queue *services.QueueService, processor *services.Processor, delta *services.DeltaService) *SyncHandler {
	return &SyncHandler{queue: queue, processor: processor, delta: delta}
}

// Routes mounts all sync endpoints; the caller wraps them in TenantAuth.
func (h *SyncHandler) Routes(r chi.Router) {
	r.Post("/enqueue", h.Enqueue)
	r.Post("/process", h.Process)
	r.Get("/status/{clientID}", h.Status)
	r.Get("/conflicts/{clientID}", h.Conflicts)
	r.Post("/resolve", h.Resolve)
	r.Get("/batch/{batchID}", h.Batch)
	r.Get("/delta", h.Delta)
	r.Get("/snapshot", h.Snapshot)
}

type enqueueRequest struct {
	ClientID   string                 `json:"clientId"`
	BusinessID uuid.UUID              `json:"businessId"`
	Items      []services.EnqueueItem `json:"items"`
}

func (h *SyncHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !authorizedTenant(w, r, req.BusinessID) {
		return
	}

	batch, err := h.queue.Enqueue(r.Context(), req.ClientID, req.BusinessID, req.Items)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"batchId": batch.ID})
}

type processRequest struct {
	ClientID   string                   `json:"clientId"`
	BusinessID uuid.UUID                `json:"businessId"`
	Config     *services.ProcessOptions `json:"config,omitempty"`
}

func (h *SyncHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientID == "" {
		respondError(w, http.StatusBadRequest, "clientId is required")
		return
	}
	if !authorizedTenant(w, r, req.BusinessID) {
		return
	}

	results, err := h.processor.Process(r.Context(), req.ClientID, req.BusinessID, req.Config)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if results == nil {
		results = []models.SyncResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	status, err := h.queue.Status(r.Context(), clientID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *SyncHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	conflicts, err := h.queue.Conflicts(r.Context(), clientID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conflicts)
}

type resolveRequest struct {
	ClientID   string         `json:"clientId"`
	ItemID     uuid.UUID      `json:"itemId"`
	Resolution string         `json:"resolution"`
	MergedData map[string]any `json:"mergedData,omitempty"`
	ResolvedBy string         `json:"resolvedBy"`
}

func (h *SyncHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.processor.ResolveConflict(
		r.Context(), req.ClientID, callerBusinessID(r),
		req.ItemID, req.Resolution, req.MergedData, req.ResolvedBy)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *SyncHandler) Batch(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid batch id")
		return
	}
	batch, err := h.queue.Batch(r.Context(), batchID)
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if batch.BusinessID != callerBusinessID(r) {
		respondError(w, http.StatusForbidden, "batch belongs to another tenant")
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func (h *SyncHandler) Delta(w http.ResponseWriter, r *http.Request) {
	businessID, ok := queryBusinessID(w, r)
	if !ok {
		return
	}
	sinceParam := r.URL.Query().Get("since")
	since, err := time.Parse(time.RFC3339, sinceParam)
	if err != nil {
		respondError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
		return
	}

	resp, err := h.delta.Delta(r.Context(), businessID, queryEntityTypes(r), since)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	businessID, ok := queryBusinessID(w, r)
	if !ok {
		return
	}
	var since *time.Time
	if sinceParam := r.URL.Query().Get("since"); sinceParam != "" {
		parsed, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = &parsed
	}

	resp, err := h.delta.Snapshot(r.Context(), businessID, queryEntityTypes(r), since)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// authorizedTenant enforces that the body's tenant matches the token's.
func authorizedTenant(w http.ResponseWriter, r *http.Request, businessID uuid.UUID) bool {
	if businessID != callerBusinessID(r) {
		respondError(w, http.StatusForbidden, "businessId does not match authenticated tenant")
		return false
	}
	return true
}

func queryBusinessID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("businessId")
	businessID, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "businessId is required")
		return uuid.Nil, false
	}
	if businessID != callerBusinessID(r) {
		respondError(w, http.StatusForbidden, "businessId does not match authenticated tenant")
		return uuid.Nil, false
	}
	return businessID, true
}

func queryEntityTypes(r *http.Request) []models.EntityType {
	values := r.URL.Query()["entityTypes"]
	entityTypes := make([]models.EntityType, 0, len(values))
	for _, v := range values {
		entityTypes = append(entityTypes, models.EntityType(v))
	}
	return entityTypes
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSyncInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrTenantMismatch):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repositories.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
