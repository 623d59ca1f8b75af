package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSuccessResponse(t *testing.T) {
	var resp PredictionResponse
	require.NoError(t, json.Unmarshal([]byte(`{"req_id":"r1","status":"200 OK","prediction":[1],"prediction_label":"Good Sleep"}`), &resp))

	assert.True(t, resp.OK())
	require.NotNil(t, resp.PredictionLabel)
	assert.Equal(t, "Good Sleep", *resp.PredictionLabel)
	assert.Nil(t, resp.Score)
}

func TestDecodeErrorResponse(t *testing.T) {
	var resp PredictionResponse
	require.NoError(t, json.Unmarshal([]byte(`{"status":"400 Bad Request","detail":"BMICategory must be 0 (Normal) or 1 (Obesity)."}`), &resp))

	assert.False(t, resp.OK())
	assert.Equal(t, "400 Bad Request", resp.Status)
}

func TestRecordUsesWireKeys(t *testing.T) {
	data, err := json.Marshal(RequestRecord{Age: 30, BloodPressure: "120/80", Gender: "male"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"BP":"120/80"`)
	assert.Contains(t, string(data), `"gender":"male"`)
}

func TestSetTimeout(t *testing.T) {
	c := &NATSPredictionClient{timeout: 30 * time.Second}
	c.SetTimeout(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.timeout)
}
