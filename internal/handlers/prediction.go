package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aigoflow/sleep-quality-service/internal/models"
	"github.com/aigoflow/sleep-quality-service/internal/services"
)

const (
	welcomeMessage = "Welcome to the Sleep Quality Prediction API"
	maxBodyBytes   = 1 << 20
)

type PredictionHandler struct {
	predictionService *services.PredictionService
}

func NewPredictionHandler(predictionService *services.PredictionService) *PredictionHandler {
	return &PredictionHandler{
		predictionService: predictionService,
	}
}

func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Post("/predict", h.handlePredict)
	r.Get("/healthz", h.handleHealth)
	r.Get("/logs", h.handleLogs)
	r.Get("/events", h.handleEvents)
}

func (h *PredictionHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (h *PredictionHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *PredictionHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &services.PredictionResponse{
			Status: services.StatusText(http.StatusBadRequest),
			Detail: "Could not read request body.",
		})
		return
	}

	req := services.PredictionRequest{
		ReqID:   RequestIDFromContext(r.Context()),
		TraceID: r.Header.Get("X-Trace-ID"),
		Input:   body,
	}

	response, _ := h.predictionService.ProcessPrediction(r.Context(), req, "http.predict", "http-worker")
	writeJSON(w, response.Code, response)
}

func queryLimit(r *http.Request) int {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}

func (h *PredictionHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.predictionService.GetRequestLogs(r.Context(), queryLimit(r))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get logs: %v", err), http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []*models.RequestLog{}
	}

	writeJSON(w, http.StatusOK, logs)
}

func (h *PredictionHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.predictionService.GetEvents(r.Context(), queryLimit(r))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get events: %v", err), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
