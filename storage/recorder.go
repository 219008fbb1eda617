package storage

import (
	"context"
	"errors"

	"reprojects/models"
)

// RunRecorder persists query-run metadata and per-run log lines.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *models.QueryRun) error
	FinishRun(ctx context.Context, run *models.QueryRun) error
	Log(ctx context.Context, entry *models.QueryLog) error
}

// MultiRecorder fans every call out to each recorder, joining their errors.
type MultiRecorder []RunRecorder

func (m MultiRecorder) CreateRun(ctx context.Context, run *models.QueryRun) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.CreateRun(ctx, run))
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) FinishRun(ctx context.Context, run *models.QueryRun) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.FinishRun(ctx, run))
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) Log(ctx context.Context, entry *models.QueryLog) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Log(ctx, entry))
	}
	return errors.Join(errs...)
}

// NopRecorder discards everything (default when no database is configured).
type NopRecorder struct{}

func (NopRecorder) CreateRun(context.Context, *models.QueryRun) error { return nil }
func (NopRecorder) FinishRun(context.Context, *models.QueryRun) error { return nil }
func (NopRecorder) Log(context.Context, *models.QueryLog) error       { return nil }
