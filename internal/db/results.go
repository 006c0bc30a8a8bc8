package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harvey-AU/hostprobe/internal/crawler"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// saveAttempts bounds how often a single upsert is tried when the failure
// looks like a connection problem.
const saveAttempts = 3

var saveRetryDelay = 200 * time.Millisecond

const upsertHostProbe = `
	INSERT INTO host_probes (
		host, run_id, available, final_url, redirect_type,
		status_code, title, content_type, technologies, probed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	ON CONFLICT (host) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		available = EXCLUDED.available,
		final_url = EXCLUDED.final_url,
		redirect_type = EXCLUDED.redirect_type,
		status_code = EXCLUDED.status_code,
		title = EXCLUDED.title,
		content_type = EXCLUDED.content_type,
		technologies = EXCLUDED.technologies,
		probed_at = EXCLUDED.probed_at
`

// ResultStore records one row per probed host.
type ResultStore struct {
	client *sql.DB
}

// NewResultStore wraps an open connection.
func NewResultStore(client *sql.DB) *ResultStore {
	return &ResultStore{client: client}
}

// Results returns a ResultStore backed by this connection.
func (d *DB) Results() *ResultStore {
	return NewResultStore(d.client)
}

// Save upserts the resolution for res.Host under runID.
func (s *ResultStore) Save(ctx context.Context, runID string, res *crawler.Resolution) error {
	if res == nil || res.Host == "" {
		return fmt.Errorf("resolution with a host is required")
	}

	var title sql.NullString
	if res.HasTitle {
		title = sql.NullString{String: res.Title, Valid: true}
	}
	technologies := res.Technologies
	if technologies == nil {
		technologies = []string{}
	}

	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		_, err = s.client.ExecContext(ctx, upsertHostProbe,
			res.Host,
			runID,
			res.Available,
			res.FinalURL,
			string(res.RedirectType),
			res.StatusCode,
			title,
			res.ContentType,
			pq.Array(technologies),
		)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) || attempt == saveAttempts {
			break
		}

		log.Warn().
			Err(err).
			Str("host", res.Host).
			Int("attempt", attempt).
			Msg("Retrying host probe save")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(saveRetryDelay):
		}
	}
	return fmt.Errorf("failed to save probe for %s: %w", res.Host, err)
}

// isRetryableError separates connection-level failures from data errors
// that would fail again unchanged.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57", "58":
			return true
		default:
			return false
		}
	}

	if errors.Is(err, sql.ErrConnDone) {
		return true
	}

	msg := err.Error()
	for _, connErr := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"too many clients",
	} {
		if strings.Contains(msg, connErr) {
			return true
		}
	}
	return false
}
