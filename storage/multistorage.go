package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fhe16/confidential-compute-backend/interfaces"
)

// MultiBackend fans exports out over several backends for redundancy.
// Store writes to every available backend; Fetch returns the first hit.
type MultiBackend struct {
	backends []interfaces.ExportBackend
	log      *slog.Logger
}

// NewMultiBackend aggregates the given backends.
func NewMultiBackend(backends []interfaces.ExportBackend, log *slog.Logger) *MultiBackend {
	if log == nil {
		log = slog.Default()
	}
	return &MultiBackend{backends: backends, log: log}
}

// Fetch tries each available backend in order and returns the first
// successful result.
func (m *MultiBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("export backend unavailable",
				slog.String("backend", backend.Name()))
			continue
		}

		data, err := backend.Fetch(ctx, id, contentType)
		if err == nil {
			m.log.Debug("fetched export",
				slog.String("backend", backend.Name()),
				slog.String("content_id", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
	}

	m.log.Error("all export backends failed to fetch",
		slog.String("content_id", id.String()),
		slog.Int("failed_backends", len(errs)))

	return nil, fmt.Errorf("all backends failed to fetch %s: %v", id, errs)
}

// Store writes to every available backend. Succeeds if at least one
// backend accepted the data.
func (m *MultiBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	var result interfaces.ContentID
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("export backend unavailable", slog.String("backend", backend.Name()))
			continue
		}

		id, err := backend.Store(ctx, data, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			continue
		}

		if !success {
			result = id
			success = true
		} else if !result.Equal(id) {
			// Same bytes must hash to the same ID everywhere.
			m.log.Warn("inconsistent content IDs across backends",
				slog.String("backend", backend.Name()),
				slog.String("expected_id", result.String()),
				slog.String("actual_id", id.String()))
		}
	}

	if !success {
		return result, fmt.Errorf("all backends failed to store export: %v", errs)
	}
	return result, nil
}

// Available reports whether at least one backend is reachable.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns a unique identifier for this backend.
func (m *MultiBackend) Name() string {
	return "multi-export"
}

// LocationURI returns the combined URI of all aggregated backends.
func (m *MultiBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}

var _ interfaces.ExportBackend = (*MultiBackend)(nil)
