package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"secops-service/internal/incident"
	"secops-service/internal/model"
)

type IncidentHandler struct {
	manager *incident.Manager
	logger  *zap.Logger
}

func NewIncidentHandler(manager *incident.Manager, logger *zap.Logger) *IncidentHandler {
	return &IncidentHandler{manager: manager, logger: logger}
}

func (h *IncidentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/metrics", h.metrics)
		r.Get("/{id}", h.get)
		r.Post("/{id}/advance", h.advance)
		r.Post("/{id}/status", h.updateStatus)
		r.Post("/{id}/close", h.close)
		r.Post("/{id}/evidence", h.addEvidence)
		r.Post("/{id}/actions/{actionID}/execute", h.executeAction)
	})
}

type createIncidentRequest struct {
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	Severity        model.Severity          `json:"severity"`
	Category        model.IncidentCategory  `json:"category"`
	Indicators      []model.ThreatIndicator `json:"indicators,omitempty"`
	AffectedUsers   []string                `json:"affected_users,omitempty"`
	AffectedSystems []string                `json:"affected_systems,omitempty"`
}

func (h *IncidentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inc, err := h.manager.CreateIncident(r.Context(), req.Title, req.Description,
		req.Severity, req.Category, req.Indicators, req.AffectedUsers, req.AffectedSystems)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *IncidentHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Incidents())
}

func (h *IncidentHandler) get(w http.ResponseWriter, r *http.Request) {
	inc, err := h.manager.Incident(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentHandler) advance(w http.ResponseWriter, r *http.Request) {
	inc, err := h.manager.ProgressToNextPhase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.IncidentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inc, err := h.manager.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentHandler) close(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RootCause      string `json:"root_cause"`
		LessonsLearned string `json:"lessons_learned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inc, err := h.manager.CloseIncident(r.Context(), chi.URLParam(r, "id"), req.RootCause, req.LessonsLearned)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentHandler) addEvidence(w http.ResponseWriter, r *http.Request) {
	var ev model.Evidence
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inc, err := h.manager.AddEvidence(r.Context(), chi.URLParam(r, "id"), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentHandler) executeAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operator string `json:"operator"`
		Result   string `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inc, err := h.manager.ExecuteAction(r.Context(), chi.URLParam(r, "id"),
		chi.URLParam(r, "actionID"), req.Operator, req.Result)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentHandler) metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Metrics())
}
