package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pricescout"

// Metrics holds all PriceScout metric instruments.
type Metrics struct {
	TasksCreated     metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	SourcesSucceeded metric.Int64Counter
	SourcesFailed    metric.Int64Counter
	TaskDuration     metric.Float64Histogram
	SourceDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksCreated, err = meter.Int64Counter("pricescout.tasks.created",
		metric.WithDescription("Number of search tasks created"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("pricescout.tasks.completed",
		metric.WithDescription("Number of search tasks completed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("pricescout.tasks.failed",
		metric.WithDescription("Number of search tasks failed"))
	if err != nil {
		return nil, err
	}

	m.SourcesSucceeded, err = meter.Int64Counter("pricescout.sources.succeeded",
		metric.WithDescription("Number of per-source pipeline runs that succeeded"))
	if err != nil {
		return nil, err
	}

	m.SourcesFailed, err = meter.Int64Counter("pricescout.sources.failed",
		metric.WithDescription("Number of per-source pipeline runs that failed"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("pricescout.task.duration_seconds",
		metric.WithDescription("End-to-end aggregation duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.SourceDuration, err = meter.Float64Histogram("pricescout.source.duration_seconds",
		metric.WithDescription("Per-source pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
