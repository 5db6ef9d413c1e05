package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"secops-service/internal/hunt"
	"secops-service/internal/model"
)

type HuntHandler struct {
	workflow *hunt.Workflow
	logger   *zap.Logger
}

func NewHuntHandler(workflow *hunt.Workflow, logger *zap.Logger) *HuntHandler {
	return &HuntHandler{workflow: workflow, logger: logger}
}

func (h *HuntHandler) RegisterRoutes(r chi.Router) {
	r.Route("/hunts", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/activate", h.activate)
		r.Post("/{id}/complete", h.complete)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/queries", h.addQuery)
		r.Post("/{id}/queries/{queryID}/execute", h.executeQuery)
		r.Post("/{id}/findings", h.addFinding)
	})
}

type createHuntRequest struct {
	Name       string `json:"name"`
	Hypothesis string `json:"hypothesis"`
	Hunter     string `json:"hunter"`
	TimeBoxHrs int    `json:"time_box_hours"`
}

func (h *HuntHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createHuntRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.workflow.CreateHunt(r.Context(), req.Name, req.Hypothesis,
		req.Hunter, time.Duration(req.TimeBoxHrs)*time.Hour)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HuntHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workflow.Hunts())
}

func (h *HuntHandler) get(w http.ResponseWriter, r *http.Request) {
	found, err := h.workflow.Hunt(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *HuntHandler) activate(w http.ResponseWriter, r *http.Request) {
	updated, err := h.workflow.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *HuntHandler) complete(w http.ResponseWriter, r *http.Request) {
	updated, err := h.workflow.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *HuntHandler) cancel(w http.ResponseWriter, r *http.Request) {
	updated, err := h.workflow.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type addQueryRequest struct {
	Name       string `json:"name"`
	Query      string `json:"query"`
	DataSource string `json:"data_source"`
}

func (h *HuntHandler) addQuery(w http.ResponseWriter, r *http.Request) {
	var req addQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q, err := h.workflow.AddQuery(r.Context(), chi.URLParam(r, "id"), req.Name, req.Query, req.DataSource)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *HuntHandler) executeQuery(w http.ResponseWriter, r *http.Request) {
	q, err := h.workflow.ExecuteQuery(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "queryID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *HuntHandler) addFinding(w http.ResponseWriter, r *http.Request) {
	var finding model.HuntFinding
	if err := json.NewDecoder(r.Body).Decode(&finding); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	recorded, err := h.workflow.AddFinding(r.Context(), chi.URLParam(r, "id"), finding)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, recorded)
}
