package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ujicara/cbt-backend/internal/config"
	"github.com/ujicara/cbt-backend/internal/database"
	"github.com/ujicara/cbt-backend/internal/logger"
	"github.com/ujicara/cbt-backend/internal/repository"
)

// Exports all attempt results as CSV, for the operator running the exam.
func main() {
	var output string
	flag.StringVar(&output, "o", "", "Output file (default stdout)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	sessionRepo := repository.NewSessionRepository(pool)

	results, err := sessionRepo.ListResults(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list results")
	}

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			log.Fatal().Err(err).Str("file", output).Msg("Failed to create output file")
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	defer w.Flush()

	_ = w.Write([]string{"identifier", "name", "status", "finish_reason", "correct", "score_pct", "passed", "started_at", "finished_at"})
	for _, r := range results {
		record := []string{
			r.Identifier,
			r.Name,
			string(r.Status),
			deref(r.FinishReason),
			derefInt(r.CorrectCount),
			derefInt(r.ScorePercentage),
			derefBool(r.Passed),
			r.StartedAt.Format(time.RFC3339),
		}
		if r.FinishedAt != nil {
			record = append(record, r.FinishedAt.Format(time.RFC3339))
		} else {
			record = append(record, "")
		}
		_ = w.Write(record)
	}

	if output != "" {
		fmt.Printf("Wrote %d results to %s\n", len(results), output)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func derefBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
