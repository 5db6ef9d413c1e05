package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"secops-service/internal/model"
	"secops-service/internal/soc"
)

type AlertHandler struct {
	engine *soc.Engine
	logger *zap.Logger
}

func NewAlertHandler(engine *soc.Engine, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{engine: engine, logger: logger}
}

func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/metrics", h.metrics)
		r.Get("/indicators", h.indicators)
		r.Get("/{id}", h.get)
		r.Post("/{id}/status", h.updateStatus)
		r.Post("/{id}/escalate", h.escalate)
	})
}

type createAlertRequest struct {
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Severity       model.Severity          `json:"severity"`
	Category       model.AlertCategory     `json:"category"`
	Indicators     []model.ThreatIndicator `json:"indicators,omitempty"`
	AffectedAssets []string                `json:"affected_assets,omitempty"`
}

func (h *AlertHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	alert, err := h.engine.CreateAlert(r.Context(), req.Title, req.Description,
		req.Severity, req.Category, req.Indicators, req.AffectedAssets)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (h *AlertHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Alerts())
}

func (h *AlertHandler) get(w http.ResponseWriter, r *http.Request) {
	alert, err := h.engine.Alert(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.AlertStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	alert, err := h.engine.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) escalate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	alert, err := h.engine.Escalate(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Metrics())
}

func (h *AlertHandler) indicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Indicators())
}
