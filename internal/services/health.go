package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/sleep-quality-service/internal/config"
)

const serviceVersion = "1.0.0"

type HealthService struct {
	nats       *nats.Conn
	config     *config.Config
	monitoring *MonitoringService
	modelName  string
}

type HealthStatus struct {
	ModelName    string              `json:"model_name"`
	Status       string              `json:"status"` // online, busy
	LastActivity time.Time           `json:"last_activity"`
	Capabilities []string            `json:"capabilities"`
	Endpoint     string              `json:"endpoint"`
	NATSTopic    string              `json:"nats_topic"`
	Version      string              `json:"version"`
	Backpressure *BackpressureReport `json:"backpressure,omitempty"`
}

func NewHealthService(natsConn *nats.Conn, cfg *config.Config, monitoring *MonitoringService, modelName string) *HealthService {
	return &HealthService{
		nats:       natsConn,
		config:     cfg,
		monitoring: monitoring,
		modelName:  modelName,
	}
}

func (h *HealthService) Start(ctx context.Context) error {
	healthTopic := fmt.Sprintf("models.%s.health", h.config.ModelName)

	_, err := h.nats.Subscribe(healthTopic, func(msg *nats.Msg) {
		statusData, err := json.Marshal(h.Status())
		if err != nil {
			slog.Error("Failed to marshal health status", "error", err)
			return
		}

		// Clients send their reply subject in the payload, plain requests use msg.Reply.
		replyTo := msg.Reply
		var req struct {
			ReplyTo string `json:"reply_to"`
		}
		if json.Unmarshal(msg.Data, &req) == nil && req.ReplyTo != "" {
			replyTo = req.ReplyTo
		}
		if replyTo == "" {
			return
		}
		if err := h.nats.Publish(replyTo, statusData); err != nil {
			slog.Error("Failed to respond to health check", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to health topic: %w", err)
	}

	slog.Info("Health service started", "topic", healthTopic)

	go h.publishHeartbeats(ctx)
	return nil
}

func (h *HealthService) publishHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	heartbeatTopic := fmt.Sprintf("models.%s.heartbeat", h.config.ModelName)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statusData, err := json.Marshal(h.Status())
			if err != nil {
				continue
			}
			if err := h.nats.Publish(heartbeatTopic, statusData); err != nil {
				slog.Warn("Failed to publish heartbeat", "error", err)
			}
		}
	}
}

// Status reports the current service status.
func (h *HealthService) Status() HealthStatus {
	status := HealthStatus{
		ModelName:    h.modelName,
		Status:       "online",
		LastActivity: time.Now(),
		Capabilities: []string{"sleep-quality-prediction"},
		Endpoint:     fmt.Sprintf("http://localhost%s", h.config.HTTPAddr),
		NATSTopic:    h.config.Subject,
		Version:      serviceVersion,
	}
	if h.monitoring != nil {
		report := h.monitoring.Report()
		status.Backpressure = &report
		if report.Status == "critical" {
			status.Status = "busy"
		}
	}
	return status
}
