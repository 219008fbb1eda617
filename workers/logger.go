package workers

import (
	"github.com/google/uuid"
	"reprojects/models"
)

// LogFunc receives per-run log lines (stored in the query_logs table under runID)
type LogFunc func(runID uuid.UUID, level models.LogLevel, city, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(runID uuid.UUID, level models.LogLevel, city, message string) {}
