// Package audit keeps the append-only CSV record of every prediction served.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aigoflow/sleep-quality-service/internal/features"
)

// TimestampLayout is the format of the Timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the first row of every audit file.
var Header = []string{
	"Timestamp", "Age", "SleepDuration", "PhysicalActivityLevel", "StressLevel",
	"HeartRate", "DailySteps", "BP", "Gender", "BMICategory", "SleepDisorderStatus",
	"Prediction",
}

// Record is one audit line: the request as submitted plus the raw prediction.
type Record struct {
	Timestamp  time.Time
	Request    features.RequestRecord
	Prediction string
}

// Logger appends audit records.
type Logger interface {
	Append(ctx context.Context, rec Record) error
}

// CSVLogger writes records to a CSV file. The file and its header row are
// created on the first Append; appends are serialized so concurrent callers
// never interleave partial lines.
type CSVLogger struct {
	path string

	mu   sync.Mutex
	file *os.File
}

func NewCSVLogger(path string) *CSVLogger {
	return &CSVLogger{path: path}
}

func (l *CSVLogger) Path() string {
	return l.path
}

func (l *CSVLogger) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := encodeRow(rec.row())
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.open(); err != nil {
		return err
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// open lazily opens the file, writing the header when it is new or empty.
// Callers hold l.mu.
func (l *CSVLogger) open() error {
	if l.file != nil {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file %s: %w", l.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit file %s: %w", l.path, err)
	}
	if info.Size() == 0 {
		header, err := encodeRow(Header)
		if err == nil {
			_, err = f.Write(header)
		}
		if err != nil {
			f.Close()
			return fmt.Errorf("write audit header: %w", err)
		}
	}

	l.file = f
	return nil
}

func (l *CSVLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (r Record) row() []string {
	q := r.Request
	return []string{
		r.Timestamp.Format(TimestampLayout),
		strconv.Itoa(q.Age),
		strconv.Itoa(q.SleepDuration),
		strconv.Itoa(q.PhysicalActivityLevel),
		strconv.Itoa(q.StressLevel),
		strconv.Itoa(q.HeartRate),
		strconv.Itoa(q.DailySteps),
		q.BloodPressure,
		q.Gender,
		strconv.Itoa(q.BMICategory),
		strconv.Itoa(q.SleepDisorderStatus),
		r.Prediction,
	}
}

func encodeRow(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadAll parses an audit file written by CSVLogger, header excluded.
func ReadAll(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("audit line %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (Record, error) {
	ts, err := time.ParseInLocation(TimestampLayout, row[0], time.Local)
	if err != nil {
		return Record{}, err
	}

	ints := make([]int, 0, 8)
	for _, idx := range []int{1, 2, 3, 4, 5, 6, 9, 10} {
		n, err := strconv.Atoi(row[idx])
		if err != nil {
			return Record{}, fmt.Errorf("column %s: %w", Header[idx], err)
		}
		ints = append(ints, n)
	}

	return Record{
		Timestamp: ts,
		Request: features.RequestRecord{
			Age:                   ints[0],
			SleepDuration:         ints[1],
			PhysicalActivityLevel: ints[2],
			StressLevel:           ints[3],
			HeartRate:             ints[4],
			DailySteps:            ints[5],
			BloodPressure:         row[7],
			Gender:                row[8],
			BMICategory:           ints[6],
			SleepDisorderStatus:   ints[7],
		},
		Prediction: row[11],
	}, nil
}
