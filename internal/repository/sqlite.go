package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aigoflow/sleep-quality-service/internal/models"
	"github.com/aigoflow/sleep-quality-service/internal/store"
)

// SQLiteRepository implements Repository interface using SQLite
type SQLiteRepository struct {
	db          *store.DB
	requestRepo RequestRepositoryInterface
	eventRepo   EventRepositoryInterface
}

func NewSQLiteRepository(db *store.DB) Repository {
	return &SQLiteRepository{
		db:          db,
		requestRepo: &SQLiteRequestRepository{db: db},
		eventRepo:   &SQLiteEventRepository{db: db},
	}
}

func (r *SQLiteRepository) Request() RequestRepositoryInterface {
	return r.requestRepo
}

func (r *SQLiteRepository) Event() EventRepositoryInterface {
	return r.eventRepo
}

// SQLiteRequestRepository handles request logging
type SQLiteRequestRepository struct {
	db *store.DB
}

func (r *SQLiteRequestRepository) LogRequest(ctx context.Context, req *models.RequestLog) error {
	if err := r.db.Req(
		req.Timestamp,
		req.TraceID,
		req.ReqID,
		req.WorkerID,
		req.Source,
		req.RawInput,
		req.Features,
		req.Prediction,
		time.Duration(req.DurationMs*float64(time.Millisecond)),
		req.Status,
		req.Error,
	); err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

func (r *SQLiteRequestRepository) GetRequestLogs(ctx context.Context, limit int) ([]*models.RequestLog, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ts,trace_id,req_id,worker_id,source,raw_input,features,prediction,dur_ms,status,error FROM requests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.RequestLog
	for rows.Next() {
		var log models.RequestLog
		var tsFloat float64

		if err := rows.Scan(
			&tsFloat, &log.TraceID, &log.ReqID, &log.WorkerID, &log.Source,
			&log.RawInput, &log.Features, &log.Prediction,
			&log.DurationMs, &log.Status, &log.Error,
		); err != nil {
			return nil, err
		}
		log.Timestamp = time.Unix(0, int64(tsFloat*1e9))
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	if err := r.db.Event(ctx, level, code, msg, meta); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) GetEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ts,level,code,msg,meta FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var ev models.Event
		var tsFloat float64
		if err := rows.Scan(&tsFloat, &ev.Level, &ev.Code, &ev.Msg, &ev.Meta); err != nil {
			return nil, err
		}
		ev.Timestamp = time.Unix(0, int64(tsFloat*1e9))
		events = append(events, &ev)
	}

	return events, rows.Err()
}
