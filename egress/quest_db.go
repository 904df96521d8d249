// Package egress contains the optional sinks the per-second stats
// of a run are delivered to.
package egress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"
	"github.com/squadracorsepolito/ringbench/internal"
)

type QuestDBConfig struct {
	Address string
	Table   string

	AutoFlushRows int
	RetryTimeout  time.Duration
}

func NewDefaultQuestDBConfig() *QuestDBConfig {
	return &QuestDBConfig{
		Address: "localhost:9000",
		Table:   "ringbench_stats",

		AutoFlushRows: 100,
		RetryTimeout:  time.Second,
	}
}

var _ internal.StatsSink = (*QuestDB)(nil)

// QuestDB writes stats snapshots as rows of a QuestDB table
// over the ILP/HTTP protocol.
type QuestDB struct {
	tel *internal.Telemetry

	cfg *QuestDBConfig

	// the line sender is not safe for concurrent use
	mux    *sync.Mutex
	sender qdb.LineSender

	deliveredRows atomic.Int64
}

func NewQuestDB(cfg *QuestDBConfig) *QuestDB {
	return &QuestDB{
		tel: internal.NewTelemetry("egress", "quest_db"),

		cfg: cfg,

		mux: &sync.Mutex{},
	}
}

func (e *QuestDB) Init(ctx context.Context) error {
	sender, err := qdb.NewLineSender(ctx,
		qdb.WithHttp(),
		qdb.WithAddress(e.cfg.Address),
		qdb.WithAutoFlushRows(e.cfg.AutoFlushRows),
		qdb.WithRetryTimeout(e.cfg.RetryTimeout),
	)
	if err != nil {
		return err
	}

	e.sender = sender

	e.tel.NewGauge("delivered_rows", func() int64 { return e.deliveredRows.Load() })
	e.tel.LogInfo("initialized", "address", e.cfg.Address, "table", e.cfg.Table)

	return nil
}

func (e *QuestDB) WriteStats(ctx context.Context, snapshot internal.StatsSnapshot) error {
	e.mux.Lock()
	defer e.mux.Unlock()

	err := e.sender.Table(e.cfg.Table).
		Symbol("kind", snapshot.Kind).
		Symbol("name", snapshot.Name).
		Int64Column("items", int64(snapshot.Items)).
		Int64Column("bytes", int64(snapshot.Bytes)).
		Int64Column("dropped", int64(snapshot.Dropped)).
		Int64Column("interval_ms", snapshot.Interval.Milliseconds()).
		At(ctx, snapshot.Timestamp)
	if err != nil {
		return err
	}

	e.deliveredRows.Add(1)

	return nil
}

// Close flushes the pending rows and closes the sender.
func (e *QuestDB) Close(ctx context.Context) error {
	e.mux.Lock()
	defer e.mux.Unlock()

	if e.sender == nil {
		return nil
	}

	e.tel.LogInfo("closing", "delivered_rows", e.deliveredRows.Load())

	return e.sender.Close(ctx)
}
