package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"slotcal/internal/config"
	"slotcal/internal/export"
	"slotcal/internal/logging"
	"slotcal/internal/models"
	"slotcal/internal/store"
)

// Standalone exporter: reads the live booking set and writes the slot
// occupancy grid to an xlsx file. Handy for cron-driven reports.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	fromFlag := flag.String("from", "", "start date (YYYY-MM-DD), defaults to the 1st of this month")
	toFlag := flag.String("to", "", "end date (YYYY-MM-DD), defaults to the last day of this month")
	outFlag := flag.String("out", "", "output path, defaults to exports/slots_<from>_<to>.xlsx")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, -1)
	if *fromFlag != "" {
		if from, err = time.Parse("2006-01-02", *fromFlag); err != nil {
			logger.Fatal().Err(err).Msg("bad -from date")
		}
	}
	if *toFlag != "" {
		if to, err = time.Parse("2006-01-02", *toFlag); err != nil {
			logger.Fatal().Err(err).Msg("bad -to date")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient := store.NewRedisClient(cfg.Redis)
	defer redisClient.Close()
	if err := store.Ping(ctx, redisClient); err != nil {
		logger.Fatal().Err(err).Msg("redis unreachable")
	}

	docs, err := store.NewRedisStore(redisClient).ListEvents(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("list bookings")
	}

	bookings := make([]*models.Booking, 0, len(docs))
	for _, doc := range docs {
		b, err := models.DecodeDocument(doc)
		if err != nil {
			logger.Warn().Err(err).Msg("discarding malformed record")
			continue
		}
		if b.Status != models.StatusCreated {
			continue
		}
		bookings = append(bookings, b)
	}

	outPath := *outFlag
	if outPath == "" {
		dir := cfg.Exports.Path
		if dir == "" {
			dir = "exports"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Msg("create exports directory")
		}
		outPath = fmt.Sprintf("%s/slots_%s_%s.xlsx", dir,
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	if err := export.WriteOccupancyFile(outPath, bookings, from, to); err != nil {
		logger.Fatal().Err(err).Msg("write workbook")
	}

	logger.Info().Str("path", outPath).Int("bookings", len(bookings)).Msg("export written")
}
