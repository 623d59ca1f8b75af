package models

import "time"

// RequestLog represents a logged prediction request
type RequestLog struct {
	Timestamp  time.Time `json:"ts"`
	TraceID    string    `json:"trace_id"`
	ReqID      string    `json:"req_id"`
	WorkerID   string    `json:"worker_id"`
	Source     string    `json:"source"`
	RawInput   string    `json:"raw_input"`
	Features   string    `json:"features"`
	Prediction string    `json:"prediction"`
	DurationMs float64   `json:"dur_ms"`
	Status     string    `json:"status"`
	Error      string    `json:"error"`
}

// Event represents a lifecycle event recorded by the service
type Event struct {
	Timestamp time.Time `json:"ts"`
	Level     string    `json:"level"`
	Code      string    `json:"code"`
	Msg       string    `json:"msg"`
	Meta      string    `json:"meta"`
}
