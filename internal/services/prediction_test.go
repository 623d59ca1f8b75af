package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/sleep-quality-service/internal/audit"
	"github.com/aigoflow/sleep-quality-service/internal/features"
	"github.com/aigoflow/sleep-quality-service/internal/model"
	"github.com/aigoflow/sleep-quality-service/internal/repository"
	"github.com/aigoflow/sleep-quality-service/internal/store"
	"github.com/aigoflow/sleep-quality-service/internal/telemetry"
)

const scenarioPayload = `{"Age":30,"SleepDuration":7,"PhysicalActivityLevel":5,"StressLevel":3,"HeartRate":70,"DailySteps":8000,"BP":"120/80","gender":"female","BMICategory":0,"SleepDisorderStatus":0}`

type stubModel struct {
	mu        sync.Mutex
	outcomes  []model.Outcome
	err       error
	panicVal  interface{}
	// onPredict runs before the outcome is returned.
	onPredict func()
	seen      []features.Vector
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) Predict(ctx context.Context, batch []features.Vector) ([]model.Outcome, error) {
	m.mu.Lock()
	m.seen = append(m.seen, batch...)
	m.mu.Unlock()
	if m.panicVal != nil {
		panic(m.panicVal)
	}
	if m.onPredict != nil {
		m.onPredict()
	}
	return m.outcomes, m.err
}

func (m *stubModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

type stubAudit struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (a *stubAudit) Append(ctx context.Context, rec audit.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *stubAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func withPayload(t *testing.T, mutate func(map[string]interface{})) json.RawMessage {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(scenarioPayload), &m))
	mutate(m)
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func newTestService(t *testing.T, m model.Model, a audit.Logger) (*PredictionService, repository.Repository, *telemetry.Metrics) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "requests.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewSQLiteRepository(db)
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	return NewPredictionService(m, a, repo, metrics), repo, metrics
}

func process(t *testing.T, svc *PredictionService, input json.RawMessage) (*PredictionResponse, error) {
	t.Helper()
	resp, err := svc.ProcessPrediction(context.Background(), PredictionRequest{ReqID: "req-1", Input: input}, "test", "test-worker")
	require.NotNil(t, resp)
	return resp, err
}

func TestLabelOutcomes(t *testing.T) {
	cases := map[int]string{1: LabelGoodSleep, 0: LabelPoorSleep}
	for label, want := range cases {
		m := &stubModel{outcomes: []model.Outcome{model.LabelOutcome(label)}}
		a := &stubAudit{}
		svc, _, _ := newTestService(t, m, a)

		resp, err := process(t, svc, json.RawMessage(scenarioPayload))
		require.NoError(t, err)
		assert.Equal(t, "200 OK", resp.Status)
		assert.Equal(t, []interface{}{label}, resp.Prediction)
		require.NotNil(t, resp.PredictionLabel)
		assert.Equal(t, want, *resp.PredictionLabel)
		assert.Nil(t, resp.Score)
		assert.Equal(t, "req-1", resp.ReqID)

		require.Equal(t, 1, a.count())
		assert.Equal(t, fmt.Sprint(label), a.records[0].Prediction)
	}
}

func TestModelReceivesEncodedVector(t *testing.T) {
	m := &stubModel{outcomes: []model.Outcome{model.LabelOutcome(1)}}
	svc, _, _ := newTestService(t, m, &stubAudit{})

	_, err := process(t, svc, json.RawMessage(scenarioPayload))
	require.NoError(t, err)
	require.Len(t, m.seen, 1)
	assert.Equal(t, features.Vector{30, 7, 5, 3, 70, 8000, 120, 80, 1, 0, 0, 1, 0}, m.seen[0])
}

func TestScoreOutcomeIsRounded(t *testing.T) {
	m := &stubModel{outcomes: []model.Outcome{model.ScoreOutcome(7.456)}}
	a := &stubAudit{}
	svc, _, _ := newTestService(t, m, a)

	resp, err := process(t, svc, json.RawMessage(scenarioPayload))
	require.NoError(t, err)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 7.46, *resp.Score)
	assert.Nil(t, resp.PredictionLabel)
	assert.Equal(t, []interface{}{7.456}, resp.Prediction)
	assert.Equal(t, "7.456", a.records[0].Prediction)
}

func TestOtherOutcomeOmitsPresentationFields(t *testing.T) {
	m := &stubModel{outcomes: []model.Outcome{model.OtherOutcome("good")}}
	a := &stubAudit{}
	svc, _, _ := newTestService(t, m, a)

	resp, err := process(t, svc, json.RawMessage(scenarioPayload))
	require.NoError(t, err)
	assert.Equal(t, "200 OK", resp.Status)
	assert.Equal(t, []interface{}{"good"}, resp.Prediction)
	assert.Nil(t, resp.PredictionLabel)
	assert.Nil(t, resp.Score)
	assert.Equal(t, 1, a.count())

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "prediction_label")
	assert.NotContains(t, string(body), "predicted_sleep_quality_score")
}

func TestClientErrorsSkipModelAndAudit(t *testing.T) {
	cases := []struct {
		name   string
		input  func(t *testing.T) json.RawMessage
		detail string
	}{
		{
			name: "bad bp",
			input: func(t *testing.T) json.RawMessage {
				return withPayload(t, func(m map[string]interface{}) { m["BP"] = "120-80" })
			},
			detail: "'systolic/diastolic'",
		},
		{
			name: "bad gender",
			input: func(t *testing.T) json.RawMessage {
				return withPayload(t, func(m map[string]interface{}) { m["gender"] = "other" })
			},
			detail: "'male' or 'female'",
		},
		{
			name: "bad bmi",
			input: func(t *testing.T) json.RawMessage {
				return withPayload(t, func(m map[string]interface{}) { m["BMICategory"] = 2 })
			},
			detail: "0 (Normal) or 1 (Obesity)",
		},
		{
			name: "missing field",
			input: func(t *testing.T) json.RawMessage {
				return withPayload(t, func(m map[string]interface{}) { delete(m, "HeartRate") })
			},
			detail: "The key 'HeartRate' is missing",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &stubModel{outcomes: []model.Outcome{model.LabelOutcome(1)}}
			a := &stubAudit{}
			svc, _, _ := newTestService(t, m, a)

			resp, err := process(t, svc, tc.input(t))
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, StatusCode(err))
			assert.Equal(t, "400 Bad Request", resp.Status)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Contains(t, resp.Detail, tc.detail)
			assert.Zero(t, m.calls())
			assert.Zero(t, a.count())
		})
	}
}

func TestServerErrors(t *testing.T) {
	cases := []struct {
		name   string
		model  *stubModel
		audit  *stubAudit
		detail string
	}{
		{
			name:   "model error",
			model:  &stubModel{err: errors.New("model exploded")},
			audit:  &stubAudit{},
			detail: "model exploded",
		},
		{
			name:   "batch size mismatch",
			model:  &stubModel{outcomes: []model.Outcome{model.LabelOutcome(1), model.LabelOutcome(0)}},
			audit:  &stubAudit{},
			detail: "model returned 2 outcomes for 1 input",
		},
		{
			name:   "model panic",
			model:  &stubModel{panicVal: "boom"},
			audit:  &stubAudit{},
			detail: "model panic: boom",
		},
		{
			name:   "audit failure",
			model:  &stubModel{outcomes: []model.Outcome{model.LabelOutcome(1)}},
			audit:  &stubAudit{err: errors.New("disk full")},
			detail: "disk full",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, metrics := newTestService(t, tc.model, tc.audit)

			resp, err := process(t, svc, json.RawMessage(scenarioPayload))
			require.Error(t, err)

			var ierr *InferenceError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
			assert.Equal(t, "500 Internal Server Error", resp.Status)
			assert.Equal(t, tc.detail, resp.Detail)
			assert.Nil(t, resp.Prediction)
			assert.Zero(t, tc.audit.count())
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PredictionsTotal.WithLabelValues("test", "error")))
		})
	}
}

func TestRequestLogCoversEveryAttempt(t *testing.T) {
	m := &stubModel{outcomes: []model.Outcome{model.LabelOutcome(1)}}
	svc, repo, _ := newTestService(t, m, &stubAudit{})

	_, err := process(t, svc, json.RawMessage(scenarioPayload))
	require.NoError(t, err)
	_, err = process(t, svc, withPayload(t, func(m map[string]interface{}) { m["gender"] = "x" }))
	require.Error(t, err)

	logs, err := repo.Request().GetRequestLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "client_error", logs[0].Status)
	assert.Equal(t, "Gender must be 'male' or 'female'.", logs[0].Error)
	assert.Empty(t, logs[0].Features)

	assert.Equal(t, "ok", logs[1].Status)
	assert.Equal(t, "1", logs[1].Prediction)
	assert.Equal(t, "[30,7,5,3,70,8000,120,80,1,0,0,1,0]", logs[1].Features)
	assert.Equal(t, "test-worker", logs[1].WorkerID)
	assert.Equal(t, "req-1", logs[1].TraceID)
}

func TestConcurrentPredictionsAuditEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	auditLog := audit.NewCSVLogger(path)
	defer auditLog.Close()

	m := &stubModel{outcomes: []model.Outcome{model.ScoreOutcome(6.5)}}
	svc := NewPredictionService(m, auditLog, nil, nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ProcessPrediction(context.Background(), PredictionRequest{Input: json.RawMessage(scenarioPayload)}, "test", "w")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.NoError(t, auditLog.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, n+1)
	assert.Equal(t, strings.Join(audit.Header, ","), lines[0])
}

func TestAuditSurvivesCallerCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	auditLog := audit.NewCSVLogger(path)
	defer auditLog.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The caller disconnects while the model is computing.
	m := &stubModel{outcomes: []model.Outcome{model.LabelOutcome(1)}, onPredict: cancel}
	svc := NewPredictionService(m, auditLog, nil, nil)

	resp, err := svc.ProcessPrediction(ctx, PredictionRequest{ReqID: "gone", Input: json.RawMessage(scenarioPayload)}, "test", "w")
	require.NoError(t, err)
	assert.Equal(t, "200 OK", resp.Status)
	require.NotNil(t, resp.PredictionLabel)
	assert.Equal(t, LabelGoodSleep, *resp.PredictionLabel)

	require.NoError(t, auditLog.Close())
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := audit.ReadAll(f)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].Prediction)
}

func TestNonFiniteScoreIsServerError(t *testing.T) {
	for name, score := range map[string]float64{
		"nan":  math.NaN(),
		"+inf": math.Inf(1),
		"-inf": math.Inf(-1),
	} {
		t.Run(name, func(t *testing.T) {
			a := &stubAudit{}
			m := &stubModel{outcomes: []model.Outcome{model.ScoreOutcome(score)}}
			svc, _, _ := newTestService(t, m, a)

			resp, err := process(t, svc, json.RawMessage(scenarioPayload))
			require.Error(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.Code)
			assert.Contains(t, resp.Detail, "non-finite score")
			assert.Nil(t, resp.Score)
			assert.Zero(t, a.count())

			_, marshalErr := json.Marshal(resp)
			assert.NoError(t, marshalErr)
		})
	}
}

func TestGetEventsReadsRepository(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubModel{}, &stubAudit{})
	ctx := context.Background()

	require.NoError(t, repo.Event().LogEvent(ctx, "info", "startup", "Server starting", nil))
	require.NoError(t, repo.Event().LogEvent(ctx, "info", "server.ready", "Server ready", nil))

	events, err := svc.GetEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "server.ready", events[0].Code)

	noRepo := NewPredictionService(&stubModel{}, &stubAudit{}, nil, nil)
	events, err = noRepo.GetEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
