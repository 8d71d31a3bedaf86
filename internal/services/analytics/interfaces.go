package analytics

import (
	"context"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

//go:generate mockgen -destination=mock_source.go -package=analytics github.com/LeonardoBeccarini/hydro_monitor/internal/services/analytics HistorySource

// HistorySource returns the readings of one channel over the trailing days.
type HistorySource interface {
	Name() string
	Readings(ctx context.Context, ch entities.SensorType, days int) ([]messages.SensorReading, error)
}

// SampleFetcher is the backend call the REST source needs.
type SampleFetcher interface {
	FetchReadings(ctx context.Context) ([]messages.PlantSample, error)
}
