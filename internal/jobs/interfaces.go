package jobs

import (
	"context"

	"github.com/Harvey-AU/hostprobe/internal/crawler"
	"github.com/Harvey-AU/hostprobe/internal/storage"
	"github.com/Harvey-AU/hostprobe/internal/techdetect"
)

// ResultStore persists one row per resolved host.
type ResultStore interface {
	Save(ctx context.Context, runID string, res *crawler.Resolution) error
}

// Mirror copies a host's written artifacts somewhere else.
type Mirror interface {
	MirrorHost(ctx context.Context, w *storage.Writer, host string) error
}

// TechDetector fingerprints the terminal response of a resolution.
type TechDetector interface {
	Detect(headers map[string]string, body []byte) *techdetect.Result
}
