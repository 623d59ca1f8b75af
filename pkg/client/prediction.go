package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// PredictionClient submits predictions to the service over NATS
type PredictionClient interface {
	Predict(ctx context.Context, rec RequestRecord) (*PredictionResponse, error)
	CheckHealth(ctx context.Context) (*HealthStatus, error)
	Close() error
}

// NATSPredictionClient implements PredictionClient using NATS
type NATSPredictionClient struct {
	conn      *nats.Conn
	clientID  string
	subject   string
	modelName string
	timeout   time.Duration
}

// NewNATSClient creates a new NATS-based prediction client. subject is the
// work-queue subject the service consumes, modelName selects the health topic.
func NewNATSClient(natsURL, clientID, subject, modelName string) (*NATSPredictionClient, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if clientID == "" {
		clientID = "prediction-client"
	}

	return &NATSPredictionClient{
		conn:      conn,
		clientID:  clientID,
		subject:   subject,
		modelName: modelName,
		timeout:   30 * time.Second,
	}, nil
}

// Predict sends one record and waits for the service's reply
func (c *NATSPredictionClient) Predict(ctx context.Context, rec RequestRecord) (*PredictionResponse, error) {
	input, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	reqID := ulid.Make().String()
	request := PredictionRequest{
		ReqID:   reqID,
		ReplyTo: fmt.Sprintf("sleep.response.%s.%s", c.clientID, reqID),
		Input:   input,
	}

	slog.Debug("Sending prediction request",
		"subject", c.subject,
		"req_id", reqID,
		"reply_subject", request.ReplyTo)

	data, err := c.roundTrip(ctx, c.subject, request.ReplyTo, request, c.timeout)
	if err != nil {
		return nil, err
	}

	var response PredictionResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &response, nil
}

// CheckHealth asks the service for its health status
func (c *NATSPredictionClient) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("health.response.%s.%s", c.clientID, reqID)

	healthReq := map[string]interface{}{
		"req_id":   reqID,
		"reply_to": replySubject,
	}

	data, err := c.roundTrip(ctx, fmt.Sprintf("models.%s.health", c.modelName), replySubject, healthReq, 5*time.Second)
	if err != nil {
		return nil, err
	}

	var health HealthStatus
	if err := json.Unmarshal(data, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &health, nil
}

// roundTrip subscribes to replySubject before publishing so the reply
// cannot be missed.
func (c *NATSPredictionClient) roundTrip(ctx context.Context, subject, replySubject string, payload interface{}, timeout time.Duration) ([]byte, error) {
	requestBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(replySubject, func(msg *nats.Msg) {
		select {
		case replyChan <- msg:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.conn.Publish(subject, requestBytes); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case msg := <-replyChan:
		return msg.Data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the NATS connection
func (c *NATSPredictionClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// SetTimeout configures request timeout
func (c *NATSPredictionClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}
