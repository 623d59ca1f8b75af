package client

import (
	"encoding/json"
	"time"

	"github.com/aigoflow/sleep-quality-service/internal/features"
)

// RequestRecord is the measurement payload sent for a prediction.
type RequestRecord = features.RequestRecord

// PredictionRequest is the queue envelope understood by the service workers
type PredictionRequest struct {
	ReqID   string          `json:"req_id"`
	TraceID string          `json:"trace_id,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Input   json.RawMessage `json:"input"`
}

// PredictionResponse represents a response from the prediction service
type PredictionResponse struct {
	ReqID           string        `json:"req_id,omitempty"`
	Status          string        `json:"status"`
	Prediction      []interface{} `json:"prediction,omitempty"`
	PredictionLabel *string       `json:"prediction_label,omitempty"`
	Score           *float64      `json:"predicted_sleep_quality_score,omitempty"`
	Detail          string        `json:"detail,omitempty"`
}

// OK reports whether the service returned a prediction.
func (r *PredictionResponse) OK() bool {
	return r.Detail == "" && len(r.Prediction) > 0
}

// HealthStatus represents model health information
type HealthStatus struct {
	ModelName    string    `json:"model_name"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"last_activity"`
	Capabilities []string  `json:"capabilities"`
	Endpoint     string    `json:"endpoint"`
	NATSTopic    string    `json:"nats_topic"`
	Version      string    `json:"version"`
}
