package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/sleep-quality-service/internal/services"
)

const staleAfter = 2 * time.Minute

// ServiceState is what the monitor knows about one prediction service.
type ServiceState struct {
	Status       services.HealthStatus
	Backpressure *services.BackpressureReport
	FirstSeen    time.Time
	LastSeen     time.Time
}

// Tracker aggregates heartbeats and backpressure reports by model name.
type Tracker struct {
	mu       sync.RWMutex
	services map[string]*ServiceState
}

func NewTracker() *Tracker {
	return &Tracker{services: make(map[string]*ServiceState)}
}

func (t *Tracker) ObserveHeartbeat(data []byte, now time.Time) error {
	var status services.HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("parse heartbeat: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.entry(status.ModelName, now)
	st.Status = status
	st.LastSeen = now
	if status.Backpressure != nil {
		st.Backpressure = status.Backpressure
	}
	return nil
}

func (t *Tracker) ObserveBackpressure(data []byte, now time.Time) error {
	var report services.BackpressureReport
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("parse backpressure report: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.entry(report.ModelName, now)
	st.Backpressure = &report
	st.LastSeen = now
	return nil
}

// entry returns the state for name, creating it. Callers hold t.mu.
func (t *Tracker) entry(name string, now time.Time) *ServiceState {
	st, ok := t.services[name]
	if !ok {
		st = &ServiceState{FirstSeen: now}
		st.Status.ModelName = name
		t.services[name] = st
	}
	return st
}

// MarkStale flags services silent for longer than staleAfter as offline.
func (t *Tracker) MarkStale(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, st := range t.services {
		if now.Sub(st.LastSeen) > staleAfter && st.Status.Status != "offline" {
			st.Status.Status = "offline"
			log.Printf("Marked service as offline: %s", name)
		}
	}
}

// Snapshot returns the known services sorted by model name.
func (t *Tracker) Snapshot() []ServiceState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ServiceState, 0, len(t.services))
	for _, st := range t.services {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Status.ModelName < out[j].Status.ModelName
	})
	return out
}

func printTable(w io.Writer, states []ServiceState, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tSTATUS\tPENDING\tACTIVE\tLOAD\tUPTIME\tLAST SEEN")
	for _, st := range states {
		pending, active, load := "-", "-", "-"
		if bp := st.Backpressure; bp != nil {
			pending = fmt.Sprint(bp.PendingMessages)
			active = fmt.Sprint(bp.ActiveProcessing)
			load = bp.Status
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s ago\n",
			st.Status.ModelName,
			st.Status.Status,
			pending,
			active,
			load,
			st.LastSeen.Sub(st.FirstSeen).Truncate(time.Second),
			now.Sub(st.LastSeen).Truncate(time.Second))
	}
	tw.Flush()
}

func main() {
	var (
		natsURL         = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
		monitoringTopic = flag.String("monitoring-topic", "monitoring.models.backpressure", "Backpressure report topic prefix")
		interval        = flag.Duration("interval", 10*time.Second, "Table refresh interval")
	)
	flag.Parse()

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	tracker := NewTracker()

	if _, err := nc.Subscribe("models.*.heartbeat", func(msg *nats.Msg) {
		if err := tracker.ObserveHeartbeat(msg.Data, time.Now()); err != nil {
			log.Printf("Ignoring heartbeat on %s: %v", msg.Subject, err)
		}
	}); err != nil {
		log.Fatalf("Failed to subscribe to heartbeats: %v", err)
	}

	backpressureSubject := strings.TrimSuffix(*monitoringTopic, ".") + ".*"
	if _, err := nc.Subscribe(backpressureSubject, func(msg *nats.Msg) {
		if err := tracker.ObserveBackpressure(msg.Data, time.Now()); err != nil {
			log.Printf("Ignoring backpressure report on %s: %v", msg.Subject, err)
		}
	}); err != nil {
		log.Fatalf("Failed to subscribe to backpressure reports: %v", err)
	}

	log.Printf("Monitor started, listening on models.*.heartbeat and %s", backpressureSubject)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Monitor stopped")
			return
		case now := <-ticker.C:
			tracker.MarkStale(now)
			printTable(os.Stdout, tracker.Snapshot(), now)
		}
	}
}
