package model

import (
	"context"
	"strconv"

	"github.com/aigoflow/sleep-quality-service/internal/features"
)

// Model is a loaded predictor. Implementations must be safe for concurrent
// Predict calls and return exactly one outcome per input vector.
type Model interface {
	Name() string
	Predict(ctx context.Context, batch []features.Vector) ([]Outcome, error)
}

// Kind discriminates the variants of Outcome.
type Kind int

const (
	KindOther Kind = iota
	KindLabel
	KindScore
)

func (k Kind) String() string {
	switch k {
	case KindLabel:
		return "label"
	case KindScore:
		return "score"
	default:
		return "other"
	}
}

// Outcome is a single prediction. Only the field matching Kind is meaningful.
type Outcome struct {
	Kind  Kind
	Label int
	Score float64
	Text  string
}

func LabelOutcome(label int) Outcome {
	return Outcome{Kind: KindLabel, Label: label}
}

func ScoreOutcome(score float64) Outcome {
	return Outcome{Kind: KindScore, Score: score}
}

func OtherOutcome(text string) Outcome {
	return Outcome{Kind: KindOther, Text: text}
}

// Value returns the raw prediction as it appears in API payloads.
func (o Outcome) Value() interface{} {
	switch o.Kind {
	case KindLabel:
		return o.Label
	case KindScore:
		return o.Score
	default:
		return o.Text
	}
}

// String formats the raw prediction for the audit log.
func (o Outcome) String() string {
	switch o.Kind {
	case KindLabel:
		return strconv.Itoa(o.Label)
	case KindScore:
		return strconv.FormatFloat(o.Score, 'f', -1, 64)
	default:
		return o.Text
	}
}
