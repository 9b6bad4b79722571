// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/importer"
	"github.com/poiesic/importer/backfill"
	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/storage/badger"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	defaults := importer.DefaultConfig()
	return &cli.App{
		Name:  "importer",
		Usage: "Import workflow engine records into a query store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"IMPORTER_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "positions",
				Aliases: []string{"p"},
				Usage:   "Path to the BadgerDB directory holding import positions",
				Value:   defaults.PositionsPath,
				EnvVars: []string{"IMPORTER_POSITIONS"},
			},
			&cli.StringFlag{
				Name:    "mongo-uri",
				Usage:   "MongoDB connection string of the record source",
				Value:   defaults.MongoURI,
				EnvVars: []string{"IMPORTER_MONGO_URI"},
			},
			&cli.StringFlag{
				Name:    "source-db",
				Usage:   "MongoDB database holding the record indices",
				Value:   defaults.SourceDatabase,
				EnvVars: []string{"IMPORTER_SOURCE_DB"},
			},
			&cli.StringFlag{
				Name:    "index-prefix",
				Usage:   "Prefix of the record index names",
				Value:   defaults.IndexPrefix,
				EnvVars: []string{"IMPORTER_INDEX_PREFIX"},
			},
			&cli.IntSliceFlag{
				Name:    "partition",
				Usage:   "Partition to import (repeatable)",
				Value:   cli.NewIntSlice(defaults.Partitions...),
				EnvVars: []string{"IMPORTER_PARTITIONS"},
			},
			&cli.StringSliceFlag{
				Name:    "value-type",
				Usage:   "Value type to import, e.g. job or PROCESS_INSTANCE (repeatable, default all)",
				EnvVars: []string{"IMPORTER_VALUE_TYPES"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Import continuously until interrupted",
				Action: runCommand,
				Flags: append(importFlags(defaults),
					&cli.DurationFlag{
						Name:  "stats-interval",
						Usage: "Log import metrics every interval (0 disables)",
						Value: time.Minute,
					},
				),
			},
			{
				Name:   "backfill",
				Usage:  "Import the current backlog and exit",
				Action: backfillCommand,
				Flags: append(importFlags(defaults),
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "Delete stored positions of the selected value types first",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 1000,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts to reach the source",
						Value: 5,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				),
			},
			{
				Name:   "positions",
				Usage:  "List stored import positions",
				Action: positionsCommand,
			},
			{
				Name:   "reset",
				Usage:  "Delete stored positions so the selected value types are imported again",
				Action: resetCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Reset every value type",
					},
				},
			},
		},
	}
}

func importFlags(defaults *importer.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "destination",
			Usage:   "Destination store (sqlite, mongo)",
			Value:   defaults.Destination,
			EnvVars: []string{"IMPORTER_DESTINATION"},
		},
		&cli.StringFlag{
			Name:    "destination-path",
			Usage:   "SQLite file for the sqlite destination",
			Value:   defaults.DestinationPath,
			EnvVars: []string{"IMPORTER_DESTINATION_PATH"},
		},
		&cli.StringFlag{
			Name:    "destination-db",
			Usage:   "MongoDB database for the mongo destination",
			EnvVars: []string{"IMPORTER_DESTINATION_DB"},
		},
		&cli.StringFlag{
			Name:    "destination-collection",
			Usage:   "MongoDB collection for the mongo destination",
			EnvVars: []string{"IMPORTER_DESTINATION_COLLECTION"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Number of concurrent import jobs",
			Value:   defaults.PoolSize,
			EnvVars: []string{"IMPORTER_WORKERS"},
		},
		&cli.IntFlag{
			Name:  "min-batch-size",
			Usage: "Smallest page size after repeated errors",
			Value: defaults.MinBatchSize,
		},
		&cli.IntFlag{
			Name:  "max-batch-size",
			Usage: "Initial and largest page size",
			Value: defaults.MaxBatchSize,
		},
		&cli.BoolFlag{
			Name:    "position-query-only",
			Usage:   "Never query by sequence",
			EnvVars: []string{"IMPORTER_POSITION_QUERY_ONLY"},
		},
		&cli.DurationFlag{
			Name:  "flush-interval",
			Usage: "How often positions are persisted (0 writes through)",
			Value: defaults.FlushInterval,
		},
		&cli.IntFlag{
			Name:    "queue-size",
			Usage:   "Pages queued or running at once (0 uses twice the worker count)",
			Value:   defaults.QueueSize,
			EnvVars: []string{"IMPORTER_QUEUE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "backoff",
			Usage:   "Initial per-stream delay after an empty page or a failure",
			Value:   defaults.Backoff,
			EnvVars: []string{"IMPORTER_BACKOFF"},
		},
		&cli.DurationFlag{
			Name:    "max-backoff",
			Usage:   "Upper bound of the per-stream delay",
			Value:   defaults.MaxBackoff,
			EnvVars: []string{"IMPORTER_MAX_BACKOFF"},
		},
		&cli.IntFlag{
			Name:    "max-empty-pages",
			Usage:   "Empty sequence pages before checking for records the window missed",
			Value:   defaults.MaxEmptyPages,
			EnvVars: []string{"IMPORTER_MAX_EMPTY_PAGES"},
		},
	}
}

// buildConfig maps global and command flags onto an importer.Config.
func buildConfig(c *cli.Context) (*importer.Config, error) {
	valueTypes, err := parseValueTypes(c.StringSlice("value-type"))
	if err != nil {
		return nil, err
	}

	cfg := importer.NewConfig(
		importer.WithPositionsPath(c.String("positions")),
		importer.WithMongo(c.String("mongo-uri"), c.String("source-db")),
		importer.WithIndexPrefix(c.String("index-prefix")),
		importer.WithPartitions(c.IntSlice("partition")...),
		importer.WithValueTypes(valueTypes...),
		importer.WithPoolSize(c.Int("workers")),
		importer.WithBatchSizes(c.Int("min-batch-size"), c.Int("max-batch-size")),
		importer.WithFlushInterval(c.Duration("flush-interval")),
		importer.WithQueueSize(c.Int("queue-size")),
		importer.WithBackoff(c.Duration("backoff"), c.Duration("max-backoff")),
		importer.WithMaxEmptyPages(c.Int("max-empty-pages")),
	)
	switch strings.ToLower(c.String("destination")) {
	case importer.DestinationMongo:
		importer.WithMongoDestination(c.String("destination-db"), c.String("destination-collection"))(cfg)
	case importer.DestinationSQLite:
		importer.WithSQLiteDestination(c.String("destination-path"))(cfg)
	default:
		cfg.Destination = c.String("destination")
	}
	if c.Bool("position-query-only") {
		cfg.UseOnlyPositionQuery = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseValueTypes(names []string) ([]core.ValueType, error) {
	var valueTypes []core.ValueType
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			vt, err := core.ParseValueType(part)
			if err != nil {
				return nil, err
			}
			valueTypes = append(valueTypes, vt)
		}
	}
	return valueTypes, nil
}

func runCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	im, err := importer.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open importer: %w", err)
	}
	defer im.Close()

	scheduler, err := im.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if interval := c.Duration("stats-interval"); interval > 0 {
		go logStats(ctx, im, interval)
	}

	slog.Info("importing", "streams", len(cfg.Streams()), "destination", cfg.Destination)
	if err := scheduler.Run(ctx); err != nil {
		return fmt.Errorf("import stopped: %w", err)
	}
	slog.Info("import stopped", "metrics", im.Metrics().Snapshot())
	return nil
}

func logStats(ctx context.Context, im *importer.Importer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("import progress", "metrics", im.Metrics().Snapshot())
		}
	}
}

func backfillCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backfillConfig := backfill.DefaultConfig()
	backfillConfig.Reset = c.Bool("reset")
	backfillConfig.ReportInterval = c.Int("report-interval")
	backfillConfig.MaxRetries = c.Int("max-retries")
	backfillConfig.RetryDelay = c.Duration("retry-delay")
	if backfillConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if backfillConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	im, err := importer.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open importer: %w", err)
	}
	defer im.Close()

	backfiller, err := im.NewBackfiller(backfillConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Positions: %s\n", cfg.PositionsPath)
	fmt.Fprintf(c.App.ErrWriter, "Source: %s/%s\n", cfg.MongoURI, cfg.SourceDatabase)
	fmt.Fprintf(c.App.ErrWriter, "Destination: %s\n", cfg.Destination)
	fmt.Fprintln(c.App.ErrWriter)

	if err := backfiller.Run(ctx); err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return nil
}

// openPositions opens the position store without connecting to the source.
func openPositions(c *cli.Context) (*badger.Backend, *badger.PositionRepository, error) {
	path := c.String("positions")
	if path == "" {
		return nil, nil, fmt.Errorf("positions path is required")
	}
	backend, err := badger.OpenBackend(path, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open positions: %w", err)
	}
	return backend, badger.NewPositionRepository(backend), nil
}

func positionsCommand(c *cli.Context) error {
	backend, repo, err := openPositions(c)
	if err != nil {
		return err
	}
	defer backend.Close()

	positions, err := repo.ListPositions(c.Context)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Fprintln(c.App.Writer, "No stored positions")
		return nil
	}

	fmt.Fprintf(c.App.Writer, "%-10s %-18s %14s %14s %-9s %s\n",
		"PARTITION", "VALUE TYPE", "POSITION", "SEQUENCE", "COMPLETED", "INDEX")
	for _, p := range positions {
		fmt.Fprintf(c.App.Writer, "%-10d %-18s %14d %14d %-9t %s\n",
			p.PartitionID, p.ValueType, p.Position, p.Sequence, p.Completed, p.IndexName)
	}
	return nil
}

func resetCommand(c *cli.Context) error {
	valueTypes, err := parseValueTypes(c.StringSlice("value-type"))
	if err != nil {
		return err
	}
	if len(valueTypes) == 0 && !c.Bool("all") {
		return fmt.Errorf("select value types with --value-type or pass --all")
	}

	backend, repo, err := openPositions(c)
	if err != nil {
		return err
	}
	defer backend.Close()

	deleted, err := repo.DeletePositions(c.Context, valueTypes...)
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted %d positions\n", deleted)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
