package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aigoflow/sleep-quality-service/internal/features"
)

// Spec is the on-disk description of a linear model.
type Spec struct {
	Name         string    `yaml:"name"`
	Kind         string    `yaml:"kind"` // classifier or regressor
	Intercept    float64   `yaml:"intercept"`
	Coefficients []float64 `yaml:"coefficients"`
	Threshold    *float64  `yaml:"threshold,omitempty"`
	Classes      []string  `yaml:"classes,omitempty"`
}

// LinearModel is a logistic classifier or linear regressor over the feature
// vector. It is immutable after construction.
type LinearModel struct {
	name       string
	classifier bool
	intercept  float64
	coef       features.Vector
	threshold  float64
	classes    []string
}

// Load reads a YAML model file.
func Load(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file %s: %w", path, err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse model file %s: %w", path, err)
	}

	m, err := New(spec)
	if err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}

	slog.Info("Model loaded",
		"path", path,
		"name", m.name,
		"kind", spec.Kind)
	return m, nil
}

// New builds a LinearModel from spec.
func New(spec Spec) (*LinearModel, error) {
	if len(spec.Coefficients) != features.VectorLen {
		return nil, fmt.Errorf("expected %d coefficients, got %d", features.VectorLen, len(spec.Coefficients))
	}

	m := &LinearModel{
		name:      spec.Name,
		intercept: spec.Intercept,
		threshold: 0.5,
	}
	if m.name == "" {
		m.name = "linear"
	}
	copy(m.coef[:], spec.Coefficients)

	switch spec.Kind {
	case "classifier":
		m.classifier = true
		if spec.Threshold != nil {
			if *spec.Threshold <= 0 || *spec.Threshold >= 1 {
				return nil, fmt.Errorf("threshold must be in (0, 1), got %v", *spec.Threshold)
			}
			m.threshold = *spec.Threshold
		}
		if len(spec.Classes) != 0 && len(spec.Classes) != 2 {
			return nil, fmt.Errorf("classes must name exactly 2 labels, got %d", len(spec.Classes))
		}
		m.classes = append([]string(nil), spec.Classes...)
	case "regressor":
		if len(spec.Classes) != 0 {
			return nil, fmt.Errorf("classes are only valid for classifiers")
		}
	default:
		return nil, fmt.Errorf("unknown model kind %q", spec.Kind)
	}

	return m, nil
}

func (m *LinearModel) Name() string {
	return m.name
}

func (m *LinearModel) Predict(ctx context.Context, batch []features.Vector) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Outcome, len(batch))
	for i, x := range batch {
		z := m.intercept
		for j := range x {
			z += m.coef[j] * x[j]
		}
		if math.IsNaN(z) || math.IsInf(z, 0) {
			return nil, fmt.Errorf("non-finite model output for row %d", i)
		}

		if !m.classifier {
			out[i] = ScoreOutcome(z)
			continue
		}

		label := 0
		if sigmoid(z) >= m.threshold {
			label = 1
		}
		if m.classes != nil {
			out[i] = OtherOutcome(m.classes[label])
		} else {
			out[i] = LabelOutcome(label)
		}
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
