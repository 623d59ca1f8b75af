package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/aigoflow/sleep-quality-service/internal/audit"
	"github.com/aigoflow/sleep-quality-service/internal/features"
	"github.com/aigoflow/sleep-quality-service/internal/model"
	"github.com/aigoflow/sleep-quality-service/internal/models"
	"github.com/aigoflow/sleep-quality-service/internal/repository"
	"github.com/aigoflow/sleep-quality-service/internal/telemetry"
)

const (
	LabelGoodSleep = "Good Sleep"
	LabelPoorSleep = "Poor Sleep"
)

type PredictionRequest struct {
	TraceID string          `json:"trace_id,omitempty"`
	ReqID   string          `json:"req_id"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Input   json.RawMessage `json:"input"`
}

// PredictionResponse is the payload returned to HTTP and NATS callers.
// Exactly one of PredictionLabel and Score is set for label and score
// outcomes; neither is set for any other outcome kind.
type PredictionResponse struct {
	ReqID           string        `json:"req_id,omitempty"`
	Status          string        `json:"status"`
	Prediction      []interface{} `json:"prediction,omitempty"`
	PredictionLabel *string       `json:"prediction_label,omitempty"`
	Score           *float64      `json:"predicted_sleep_quality_score,omitempty"`
	Detail          string        `json:"detail,omitempty"`
	Code            int           `json:"-"`
}

// InferenceError is a server-side failure during or after model invocation.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// StatusCode maps an error from the prediction pipeline to an HTTP status:
// 400 for invalid or missing input, 500 for everything else.
func StatusCode(err error) int {
	var verr *features.ValidationError
	var merr *features.MissingFieldError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr), errors.As(err, &merr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// StatusText renders a status code the way response payloads carry it,
// e.g. "400 Bad Request".
func StatusText(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}

type PredictionService struct {
	model   model.Model
	audit   audit.Logger
	repo    repository.Repository
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewPredictionService(m model.Model, auditLog audit.Logger, repo repository.Repository, metrics *telemetry.Metrics) *PredictionService {
	return &PredictionService{
		model:   m,
		audit:   auditLog,
		repo:    repo,
		metrics: metrics,
		now:     time.Now,
	}
}

// ProcessPrediction decodes a raw payload, runs the prediction pipeline and
// records the attempt in the request log. The response is always non-nil;
// err is the classified failure, if any.
func (s *PredictionService) ProcessPrediction(ctx context.Context, req PredictionRequest, source string, workerID string) (response *PredictionResponse, err error) {
	start := time.Now()

	traceID := req.TraceID
	if traceID == "" {
		traceID = req.ReqID
	}

	var (
		encoded string
		outcome *model.Outcome
	)

	defer func() {
		if r := recover(); r != nil {
			err = &InferenceError{Op: "panic", Err: fmt.Errorf("service panic: %v", r)}
			response = errorResponse(req.ReqID, err)
		}

		duration := time.Since(start)
		durationMs := float64(duration.Microseconds()) / 1e3

		status, kind, prediction := "ok", "", ""
		if err != nil {
			status = "error"
			if StatusCode(err) == http.StatusBadRequest {
				status = "client_error"
			}
		} else if outcome != nil {
			kind = outcome.Kind.String()
			prediction = outcome.String()
		}
		s.metrics.RecordPrediction(source, status, kind, durationMs)

		s.logRequest(ctx, &models.RequestLog{
			Timestamp:  start,
			TraceID:    traceID,
			ReqID:      req.ReqID,
			WorkerID:   workerID,
			Source:     source,
			RawInput:   string(req.Input),
			Features:   encoded,
			Prediction: prediction,
			DurationMs: durationMs,
			Status:     status,
			Error:      errString(err),
		})

		if err != nil {
			slog.Warn("Prediction failed",
				"req_id", req.ReqID,
				"source", source,
				"worker_id", workerID,
				"status", status,
				"duration_ms", duration.Milliseconds(),
				"error", err)
		} else {
			slog.Info("Prediction completed",
				"req_id", req.ReqID,
				"source", source,
				"worker_id", workerID,
				"outcome", prediction,
				"duration_ms", duration.Milliseconds())
		}
	}()

	rec, err := features.Decode(req.Input)
	if err != nil {
		return errorResponse(req.ReqID, err), err
	}

	result, err := s.predict(ctx, rec)
	if result.encoded {
		encoded = vectorJSON(result.vector)
	}
	if err != nil {
		return errorResponse(req.ReqID, err), err
	}
	outcome = &result.outcome

	response = successResponse(result.outcome)
	response.ReqID = req.ReqID
	return response, nil
}

type predictResult struct {
	vector  features.Vector
	encoded bool
	outcome model.Outcome
}

func (s *PredictionService) predict(ctx context.Context, rec features.RequestRecord) (predictResult, error) {
	var result predictResult

	// Validation failures never reach the model or the audit log.
	normalized, err := features.Validate(rec)
	if err != nil {
		return result, err
	}

	result.vector = features.Encode(normalized)
	result.encoded = true

	outcome, err := s.invoke(ctx, result.vector)
	if err != nil {
		return result, &InferenceError{Op: "predict", Err: err}
	}
	result.outcome = outcome

	auditRec := audit.Record{
		Timestamp:  s.now(),
		Request:    rec,
		Prediction: outcome.String(),
	}
	// A finished inference is audited even if the caller has gone away.
	if err := s.audit.Append(context.WithoutCancel(ctx), auditRec); err != nil {
		s.metrics.RecordAuditFailure()
		return result, &InferenceError{Op: "audit", Err: err}
	}

	return result, nil
}

// invoke calls the model with a single-row batch, turning a model panic into
// an error.
func (s *PredictionService) invoke(ctx context.Context, v features.Vector) (outcome model.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panic: %v", r)
		}
	}()

	outcomes, err := s.model.Predict(ctx, []features.Vector{v})
	if err != nil {
		return model.Outcome{}, err
	}
	if len(outcomes) != 1 {
		return model.Outcome{}, fmt.Errorf("model returned %d outcomes for 1 input", len(outcomes))
	}
	o := outcomes[0]
	if o.Kind == model.KindScore && (math.IsNaN(o.Score) || math.IsInf(o.Score, 0)) {
		return model.Outcome{}, fmt.Errorf("model returned non-finite score %v", o.Score)
	}
	return o, nil
}

func successResponse(o model.Outcome) *PredictionResponse {
	resp := &PredictionResponse{
		Status:     StatusText(http.StatusOK),
		Prediction: []interface{}{o.Value()},
		Code:       http.StatusOK,
	}

	switch o.Kind {
	case model.KindLabel:
		label := LabelPoorSleep
		if o.Label == 1 {
			label = LabelGoodSleep
		}
		resp.PredictionLabel = &label
	case model.KindScore:
		score := math.Round(o.Score*100) / 100
		resp.Score = &score
	default:
		// Other outcome kinds carry only the raw prediction.
	}
	return resp
}

func errorResponse(reqID string, err error) *PredictionResponse {
	code := StatusCode(err)
	return &PredictionResponse{
		ReqID:  reqID,
		Status: StatusText(code),
		Detail: err.Error(),
		Code:   code,
	}
}

func (s *PredictionService) logRequest(ctx context.Context, entry *models.RequestLog) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Request().LogRequest(ctx, entry); err != nil {
		s.metrics.RecordRequestLogError()
		slog.Error("Failed to store request log", "req_id", entry.ReqID, "error", err)
	}
}

// GetRequestLogs retrieves request logs through the repository
func (s *PredictionService) GetRequestLogs(ctx context.Context, limit int) ([]*models.RequestLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.Request().GetRequestLogs(ctx, limit)
}

// GetEvents retrieves lifecycle events through the repository
func (s *PredictionService) GetEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.Event().GetEvents(ctx, limit)
}

// ModelName reports the name of the served model.
func (s *PredictionService) ModelName() string {
	return s.model.Name()
}

func vectorJSON(v features.Vector) string {
	b, err := json.Marshal(v.Slice())
	if err != nil {
		return ""
	}
	return string(b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
