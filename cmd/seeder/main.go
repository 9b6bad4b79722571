package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/source"
	"github.com/poiesic/importer/source/mock"
	mongosrc "github.com/poiesic/importer/source/mongo"
	"github.com/urfave/cli/v2"
)

const (
	legacyVersion  = "8.2.0"
	currentVersion = "8.5.0"
	tenantID       = "acme"
)

var jobTypes = []string{"payment", "shipping", "invoice", "notify-customer"}

var processIDs = []string{"order-process", "refund-process", "onboarding"}

// generator produces the records of one partition. Positions are shared by
// every value type of the partition, sequences are per value type.
type generator struct {
	prefix    string
	partition int
	position  int64
	key       int64
	sequences map[core.ValueType]int64
	timestamp time.Time
}

func newGenerator(prefix string, partition int, start time.Time) *generator {
	return &generator{
		prefix:    prefix,
		partition: partition,
		key:       int64(partition) << 51,
		sequences: make(map[core.ValueType]int64),
		timestamp: start,
	}
}

func (g *generator) nextKey() int64 {
	g.key++
	return g.key
}

func (g *generator) record(vt core.ValueType, version, intent string, key int64, value map[string]any) *core.Record {
	g.position++
	g.sequences[vt]++
	g.timestamp = g.timestamp.Add(15 * time.Millisecond)
	if version != legacyVersion {
		value["tenantId"] = tenantID
	}
	return &core.Record{
		PartitionID:   g.partition,
		Position:      g.position,
		Sequence:      g.sequences[vt],
		Key:           key,
		RecordType:    core.RecordTypeEvent,
		ValueType:     vt.String(),
		Intent:        intent,
		Timestamp:     g.timestamp.UnixMilli(),
		BrokerVersion: version,
		Value:         value,
		IndexName:     source.IndexName(g.prefix, vt, version, g.timestamp.Format("2006-01-02")),
	}
}

// instance emits the records of one process instance: activation, a job,
// a variable, and either job completion or an incident.
func (g *generator) instance(n int, version string) []*core.Record {
	processID := processIDs[n%len(processIDs)]
	piKey := g.nextKey()
	jobKey := g.nextKey()
	base := func() map[string]any {
		return map[string]any{"processInstanceKey": piKey, "bpmnProcessId": processID}
	}
	withFields := func(m map[string]any, kv ...any) map[string]any {
		for i := 0; i+1 < len(kv); i += 2 {
			m[kv[i].(string)] = kv[i+1]
		}
		return m
	}

	records := []*core.Record{
		g.record(core.ValueTypeProcessInstance, version, "ELEMENT_ACTIVATED", piKey,
			withFields(base(), "bpmnElementType", "PROCESS", "version", int64(1), "processDefinitionKey", int64(2251799813685249))),
		g.record(core.ValueTypeVariable, version, "CREATED", g.nextKey(),
			withFields(base(), "name", "orderId", "scopeKey", piKey, "value", fmt.Sprintf("\"order-%d\"", n))),
		g.record(core.ValueTypeJob, version, "CREATED", jobKey,
			withFields(base(), "type", jobTypes[n%len(jobTypes)], "elementId", "task", "retries", int64(3))),
	}

	if n%10 == 9 {
		records = append(records,
			g.record(core.ValueTypeJob, version, "FAILED", jobKey,
				withFields(base(), "type", jobTypes[n%len(jobTypes)], "elementId", "task", "retries", int64(0),
					"errorMessage", "connection refused")),
			g.record(core.ValueTypeIncident, version, "CREATED", g.nextKey(),
				withFields(base(), "errorType", "JOB_NO_RETRIES", "errorMessage", "connection refused",
					"elementId", "task", "jobKey", jobKey)),
		)
		return records
	}

	return append(records,
		g.record(core.ValueTypeJob, version, "COMPLETED", jobKey,
			withFields(base(), "type", jobTypes[n%len(jobTypes)], "elementId", "task", "worker", "seeder", "retries", int64(3))),
		g.record(core.ValueTypeProcessInstance, version, "ELEMENT_COMPLETED", piKey,
			withFields(base(), "bpmnElementType", "PROCESS", "version", int64(1), "processDefinitionKey", int64(2251799813685249))),
	)
}

// records returns every record of a partition. The first half of the
// instances is written by the legacy engine version, the rest by the current
// one, which rolls the stream over to new indices.
func records(g *generator, instances int) iter.Seq[*core.Record] {
	return func(yield func(*core.Record) bool) {
		for n := range instances {
			version := legacyVersion
			if n >= instances/2 {
				version = currentVersion
			}
			for _, r := range g.instance(n, version) {
				if !yield(r) {
					return
				}
			}
		}
	}
}

type inserter interface {
	Insert(ctx context.Context, indexName string, records ...*core.Record) error
	EnsureIndexes(ctx context.Context, indexName string) error
}

// insertBatched reads from a record iterator and inserts them in batches,
// one insert per target index.
func insertBatched(ctx context.Context, dst inserter, seq iter.Seq[*core.Record], batchSize int) (int, error) {
	batch := make([]*core.Record, 0, batchSize)
	indices := make(map[string]bool)
	total := 0

	flush := func() error {
		var order []string
		groups := make(map[string][]*core.Record)
		for _, r := range batch {
			if _, ok := groups[r.IndexName]; !ok {
				order = append(order, r.IndexName)
			}
			groups[r.IndexName] = append(groups[r.IndexName], r)
		}
		for _, index := range order {
			if !indices[index] {
				if err := dst.EnsureIndexes(ctx, index); err != nil {
					return fmt.Errorf("ensure indexes on %s: %w", index, err)
				}
				indices[index] = true
			}
			if err := dst.Insert(ctx, index, groups[index]...); err != nil {
				return fmt.Errorf("insert into %s: %w", index, err)
			}
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for r := range seq {
		batch = append(batch, r)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}

	// Insert any remaining records
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// mockInserter seeds an in-memory source for dry runs.
type mockInserter struct {
	*mock.Source
}

func (m mockInserter) Insert(ctx context.Context, indexName string, records ...*core.Record) error {
	m.Add(indexName, records...)
	return nil
}

func (m mockInserter) EnsureIndexes(ctx context.Context, indexName string) error {
	return nil
}

func seed(c *cli.Context) error {
	ctx := c.Context

	var dst inserter
	if c.Bool("dry-run") {
		dst = mockInserter{mock.New()}
	} else {
		src, err := mongosrc.Connect(ctx, c.String("mongo-uri"), c.String("source-db"))
		if err != nil {
			return err
		}
		defer src.Close()
		dst = src
	}

	start := time.Now().UTC().Add(-time.Hour)
	for _, partition := range c.IntSlice("partition") {
		g := newGenerator(c.String("index-prefix"), partition, start)
		n, err := insertBatched(ctx, dst, records(g, c.Int("instances")), c.Int("batch-size"))
		if err != nil {
			return fmt.Errorf("partition %d: %w", partition, err)
		}
		slog.Info("partition seeded", "partition", partition, "records", n, "lastPosition", g.position)
	}

	if m, ok := dst.(mockInserter); ok {
		for _, vt := range core.AllValueTypes {
			n, err := m.Count(ctx, source.IndexPattern(c.String("index-prefix"), vt), source.SequenceRange(0, math.MaxInt64))
			if err != nil && !errors.Is(err, source.ErrIndexNotFound) {
				return err
			}
			slog.Info("dry run", "valueType", vt, "records", n)
		}
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "seeder",
		Usage: "Write synthetic engine records into the MongoDB source",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mongo-uri",
				Value:   "mongodb://localhost:27017",
				EnvVars: []string{"IMPORTER_MONGO_URI"},
			},
			&cli.StringFlag{
				Name:    "source-db",
				Value:   "zeebe",
				EnvVars: []string{"IMPORTER_SOURCE_DB"},
			},
			&cli.StringFlag{
				Name:    "index-prefix",
				Value:   source.DefaultIndexPrefix,
				EnvVars: []string{"IMPORTER_INDEX_PREFIX"},
			},
			&cli.IntSliceFlag{
				Name:  "partition",
				Usage: "Partition to seed (repeatable)",
				Value: cli.NewIntSlice(1, 2),
			},
			&cli.IntFlag{
				Name:  "instances",
				Usage: "Process instances per partition",
				Value: 500,
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Records per insert",
				Value: 250,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Generate records into an in-memory source instead of MongoDB",
			},
		},
		Action: seed,
	}
}
