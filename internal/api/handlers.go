package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
	"github.com/brokerdesk/campaign-engine/internal/service/campaign"
	"github.com/brokerdesk/campaign-engine/internal/service/template"
	"github.com/brokerdesk/campaign-engine/internal/stats"
)

// processTimeout bounds a synchronously launched campaign run.
const processTimeout = 10 * time.Minute

// Processor launches the processing pipeline for a campaign.
type Processor interface {
	Process(ctx context.Context, campaignID string) error
}

// Handlers carries the services the HTTP layer fronts.
type Handlers struct {
	campaigns  *campaign.Service
	templates  *template.Service
	aggregator *stats.Aggregator
	processor  Processor
}

func NewHandlers(campaigns *campaign.Service, templates *template.Service, aggregator *stats.Aggregator, processor Processor) *Handlers {
	return &Handlers{
		campaigns:  campaigns,
		templates:  templates,
		aggregator: aggregator,
		processor:  processor,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =====================================================================
// Campaigns
// =====================================================================

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := campaign.ListFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Limit:  intParam(q.Get("limit"), 50),
		Offset: intParam(q.Get("offset"), 0),
	}
	if v := q.Get("automated"); v != "" {
		automated := v == "true"
		f.Automated = &automated
	}

	campaigns, total, err := h.campaigns.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": campaigns,
		"total":     total,
	})
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	c, err := h.campaigns.Create(r.Context(), input)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type decisionRequest struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handlers) ApproveCampaign(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Approver == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "approver is required"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.campaigns.Approve(r.Context(), id, req.Approver); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.CampaignApproved)})
}

func (h *Handlers) RejectCampaign(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Approver == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "approver is required"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.campaigns.Reject(r.Context(), id, req.Approver, req.Reason); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.CampaignRejected)})
}

func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.campaigns.Cancel(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.CampaignCancelled)})
}

// SendCampaign launches processing in the background. The pipeline
// claims the campaign via compare-and-set, so a double send returns
// 409 from the next poll, not a duplicate batch.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.processor.Process(ctx, id); err != nil {
			logger.Warn("send request did not process", "campaign_id", id, "error", err.Error())
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "processing"})
}

func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	s, err := h.aggregator.Recompute(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// =====================================================================
// Templates
// =====================================================================

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	templates, err := h.templates.List(r.Context(), activeOnly)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t domain.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	created, warnings, err := h.templates.Create(r.Context(), &t)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"template": created,
		"warnings": warnings,
	})
}

func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var t domain.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	t.ID = chi.URLParam(r, "id")

	warnings, err := h.templates.Update(r.Context(), &t)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"template": t,
		"warnings": warnings,
	})
}

// =====================================================================
// Helpers
// =====================================================================

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err.Error())
	}
}

// respondError maps service sentinel errors onto HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, template.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, campaign.ErrValidation), errors.Is(err, template.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, campaign.ErrNotPending),
		errors.Is(err, campaign.ErrAlreadySending):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "error", err.Error())
		respondJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
