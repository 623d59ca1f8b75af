package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/sleep-quality-service/internal/config"
)

// generateWorkerID creates a unique worker ID using timestamp and random bytes
func generateWorkerID() string {
	timestamp := time.Now().UnixNano()
	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)
	return fmt.Sprintf("worker-%d-%s", timestamp, hex.EncodeToString(randomBytes))
}

// Predictor is the part of PredictionService the queue workers depend on.
type Predictor interface {
	ProcessPrediction(ctx context.Context, req PredictionRequest, source string, workerID string) (*PredictionResponse, error)
}

type NATSService struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	predictor  Predictor
	cfg        *config.Config
	monitoring *MonitoringService
}

func NewNATSService(cfg *config.Config, predictor Predictor) (*NATSService, error) {
	// Connect to NATS
	conn, err := nats.Connect(cfg.NatsURL, nats.Name("sleep-quality-"+cfg.ModelName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSService{
		conn:       conn,
		js:         js,
		predictor:  predictor,
		cfg:        cfg,
		monitoring: NewMonitoringService(conn, cfg),
	}, nil
}

func (s *NATSService) Start(ctx context.Context) error {
	if err := s.ensureStream(); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := s.createConsumer()
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	slog.Info("NATS service starting",
		"stream", s.cfg.Stream,
		"subject", s.cfg.Subject,
		"consumer", s.cfg.Durable,
		"concurrency", s.cfg.Concurrency)

	go s.monitoring.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			s.worker(ctx, consumer, workerID)
		}(generateWorkerID())
	}

	// Block until context is cancelled, then let in-flight messages finish
	<-ctx.Done()
	slog.Info("NATS service shutting down")
	wg.Wait()

	s.conn.Close()
	return nil
}

func (s *NATSService) ensureStream() error {
	streamInfo, err := s.js.StreamInfo(s.cfg.Stream)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to get stream info: %w", err)
		}
		_, err = s.js.AddStream(&nats.StreamConfig{
			Name:      s.cfg.Stream,
			Subjects:  []string{s.cfg.Subject},
			MaxMsgs:   int64(s.cfg.MaxMsgs),
			MaxAge:    s.cfg.MaxAge,
			Storage:   nats.FileStorage,
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		slog.Info("Created NATS stream", "name", s.cfg.Stream)
		return nil
	}

	for _, subject := range streamInfo.Config.Subjects {
		if subject == s.cfg.Subject {
			slog.Info("NATS stream already exists", "name", s.cfg.Stream, "messages", streamInfo.State.Msgs)
			return nil
		}
	}

	// Update stream to include our subject
	newConfig := streamInfo.Config
	newConfig.Subjects = append(newConfig.Subjects, s.cfg.Subject)
	if _, err := s.js.UpdateStream(&newConfig); err != nil {
		return fmt.Errorf("failed to update stream with new subject: %w", err)
	}
	slog.Info("Updated NATS stream with new subject", "name", s.cfg.Stream, "subject", s.cfg.Subject)
	return nil
}

func (s *NATSService) createConsumer() (*nats.Subscription, error) {
	sub, err := s.js.PullSubscribe(s.cfg.Subject, s.cfg.Durable,
		nats.ManualAck(),
		nats.AckWait(s.cfg.AckWait),
		nats.MaxDeliver(s.cfg.MaxDeliver),
		nats.MaxAckPending(s.cfg.MaxAckPending))
	if err != nil {
		return nil, fmt.Errorf("failed to create pull consumer: %w", err)
	}

	slog.Info("Created NATS consumer", "durable", s.cfg.Durable)
	return sub, nil
}

func (s *NATSService) worker(ctx context.Context, consumer *nats.Subscription, workerID string) {
	slog.Info("NATS worker starting", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("NATS worker shutting down", "worker_id", workerID)
			return
		default:
			msgs, err := consumer.Fetch(1, nats.MaxWait(time.Second))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
					continue // Normal timeout, continue polling
				}
				slog.Error("Failed to fetch messages", "worker_id", workerID, "error", err)
				time.Sleep(time.Second) // Back off on error
				continue
			}

			for _, msg := range msgs {
				s.monitoring.IncrementPending()
				s.processMessage(ctx, msg, workerID)
				s.monitoring.DecrementPending()
			}
		}
	}
}

func (s *NATSService) processMessage(ctx context.Context, msg *nats.Msg, workerID string) {
	s.monitoring.IncrementActive()
	defer s.monitoring.DecrementActive()

	replyTo, data, ok := HandlePredictionMessage(ctx, s.predictor, msg.Subject, msg.Data, workerID)
	if ok && replyTo != "" {
		if err := s.conn.Publish(replyTo, data); err != nil {
			slog.Error("Failed to publish response",
				"worker_id", workerID,
				"reply_subject", replyTo,
				"error", err)
		}
	}

	settleMessage(msg, ok, workerID)
}

// Acknowledger is the part of *nats.Msg used to settle a delivery.
type Acknowledger interface {
	Ack(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// settleMessage acks handled messages. Client errors are final, so they are
// acked too. Envelopes that cannot be parsed are terminated, since a
// redelivery would fail the same way.
func settleMessage(msg Acknowledger, handled bool, workerID string) {
	if !handled {
		if err := msg.Term(); err != nil {
			slog.Error("Failed to terminate message", "worker_id", workerID, "error", err)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("Failed to acknowledge message", "worker_id", workerID, "error", err)
	}
}

// HandlePredictionMessage runs one queued prediction request and returns the
// reply subject and encoded response. ok is false when the envelope itself
// could not be parsed.
func HandlePredictionMessage(ctx context.Context, predictor Predictor, subject string, payload []byte, workerID string) (replyTo string, data []byte, ok bool) {
	var req PredictionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		slog.Error("Failed to parse prediction request",
			"worker_id", workerID,
			"error", err,
			"data", string(payload))
		return "", nil, false
	}

	if req.TraceID == "" {
		req.TraceID = req.ReqID
	}

	slog.Debug("Processing NATS prediction request",
		"worker_id", workerID,
		"req_id", req.ReqID,
		"trace_id", req.TraceID,
		"subject", subject)

	response, _ := predictor.ProcessPrediction(ctx, req, "nats."+subject, workerID)

	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal response",
			"worker_id", workerID,
			"req_id", req.ReqID,
			"error", err)
		return "", nil, false
	}
	return req.ReplyTo, data, true
}

func (s *NATSService) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

func (s *NATSService) GetConnection() *nats.Conn {
	return s.conn
}

func (s *NATSService) GetMonitoringService() *MonitoringService {
	return s.monitoring
}
