package main

import (
	"context"
	"os"
	"time"

	"github.com/Harvey-AU/hostprobe/internal/crawler"
	"github.com/Harvey-AU/hostprobe/internal/db"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pg-test checks that the result store can reach Postgres, write a row and
// read it back.
func main() {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded, using environment as-is")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Msg("Testing PostgreSQL connection")

	pgDB, err := db.InitFromEnv(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pgDB.Close()

	log.Info().Msg("Successfully connected to PostgreSQL")

	runID := uuid.NewString()
	host := "pg-test-" + runID[:8] + ".invalid"
	res := &crawler.Resolution{
		Host:         host,
		Available:    true,
		FinalURL:     "http://" + host + "/",
		RedirectType: crawler.RedirectNone,
		Hops:         1,
		StatusCode:   200,
		Title:        "pg-test",
		HasTitle:     true,
		ContentType:  "text/html",
	}

	if err := pgDB.Results().Save(ctx, runID, res); err != nil {
		log.Fatal().Err(err).Msg("Failed to save test probe")
	}
	log.Info().Str("host", host).Str("run_id", runID).Msg("Saved test probe")

	var (
		gotRunID string
		title    string
	)
	err = pgDB.GetDB().QueryRowContext(ctx,
		"SELECT run_id, title FROM host_probes WHERE host = $1", host).Scan(&gotRunID, &title)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read test probe back")
	}
	if gotRunID != runID || title != res.Title {
		log.Fatal().Str("run_id", gotRunID).Str("title", title).Msg("Stored probe does not match")
	}

	if _, err := pgDB.GetDB().ExecContext(ctx, "DELETE FROM host_probes WHERE host = $1", host); err != nil {
		log.Error().Err(err).Msg("Failed to clean up test probe")
	}

	log.Info().Msg("Test completed successfully!")
}
