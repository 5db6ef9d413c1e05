package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"secops-service/internal/model"
	"secops-service/internal/pipeline"
)

type LogHandler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

func NewLogHandler(p *pipeline.Pipeline, logger *zap.Logger) *LogHandler {
	return &LogHandler{pipeline: p, logger: logger}
}

func (h *LogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/logs", func(r chi.Router) {
		r.Post("/", h.ingest)
		r.Post("/{level}", h.ingestLevel)
		r.Get("/stats", h.stats)
		r.Get("/config", h.getConfig)
		r.Put("/config", h.updateConfig)
	})
}

type ingestRequest struct {
	Level    model.LogLevel         `json:"level"`
	Category model.LogCategory      `json:"category"`
	Source   string                 `json:"source"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (h *LogHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Category == "" {
		req.Category = model.CategorySystem
	}
	entry, err := h.pipeline.Log(r.Context(), req.Level, req.Source, req.Message, req.Metadata, req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entry == nil {
		// dropped by sampling or filtering
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "dropped"})
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *LogHandler) ingestLevel(w http.ResponseWriter, r *http.Request) {
	level := model.LogLevel(chi.URLParam(r, "level"))
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Level = level
	if req.Category == "" {
		req.Category = model.CategorySystem
	}
	entry, err := h.pipeline.Log(r.Context(), req.Level, req.Source, req.Message, req.Metadata, req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "dropped"})
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *LogHandler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Stats())
}

func (h *LogHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Configuration())
}

func (h *LogHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.LoggingConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration body")
		return
	}
	h.pipeline.UpdateConfiguration(r.Context(), cfg)
	writeJSON(w, http.StatusOK, cfg)
}
