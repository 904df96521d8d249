package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/squadracorsepolito/ringbench"
	"github.com/squadracorsepolito/ringbench/consumer"
	"github.com/squadracorsepolito/ringbench/egress"
	"github.com/squadracorsepolito/ringbench/internal"
	"github.com/squadracorsepolito/ringbench/internal/telemetry"
)

type flags struct {
	debug          bool
	slotBytes      int
	slotCount      int
	durationSecs   int
	slotsPerSecond int
	readers        int
	waitMode       string
	otlp           bool
	questDBAddress string
}

func parseFlags(args []string) (*ringbench.Config, error) {
	f := &flags{}

	fs := flag.NewFlagSet("ringbench", flag.ContinueOnError)
	fs.BoolVar(&f.debug, "debug", false, "enable debug logs")
	fs.IntVar(&f.slotBytes, "slot-bytes", 0, "size of a frame in bytes (required)")
	fs.IntVar(&f.slotCount, "slot-count", 0, "number of slots of the ring buffer (required)")
	fs.IntVar(&f.durationSecs, "duration-seconds", 0, "total run time in seconds (required)")
	fs.IntVar(&f.slotsPerSecond, "slots-per-second", 0, "target write rate (required)")
	fs.IntVar(&f.readers, "readers", 1, "number of independent readers")
	fs.StringVar(&f.waitMode, "wait-mode", consumer.WaitModeNotify.String(), "how caught up readers wait: notify or poll")
	fs.BoolVar(&f.otlp, "otlp", false, "export traces and metrics over OTLP")
	fs.StringVar(&f.questDBAddress, "questdb-addr", "", "QuestDB address for the per-second stats, disabled when empty")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	waitMode, err := consumer.ParseWaitMode(f.waitMode)
	if err != nil {
		return nil, err
	}

	cfg := ringbench.NewDefaultConfig()
	cfg.Debug = f.debug
	cfg.SlotBytes = f.slotBytes
	cfg.SlotCount = f.slotCount
	cfg.Duration = time.Duration(f.durationSecs) * time.Second
	cfg.SlotsPerSecond = f.slotsPerSecond
	cfg.Readers = f.readers
	cfg.WaitMode = waitMode
	cfg.OTLP = f.otlp
	cfg.QuestDBAddress = f.questDBAddress

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func run(ctx context.Context, cfg *ringbench.Config) error {
	runID := uuid.NewString()

	internal.SetDebug(cfg.Debug)
	internal.SetRunID(runID)

	l := internal.NewLogger("cmd", "ringbench")

	if cfg.OTLP {
		telCfg := telemetry.NewDefaultConfig()
		telCfg.InstanceID = runID

		shutdown, err := telemetry.Init(ctx, telCfg)
		if err != nil {
			return fmt.Errorf("failed to init telemetry: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", err)
			}
		}()
	}

	opts := []ringbench.Option{}

	if cfg.QuestDBAddress != "" {
		qdbCfg := egress.NewDefaultQuestDBConfig()
		qdbCfg.Address = cfg.QuestDBAddress

		sink := egress.NewQuestDB(qdbCfg)
		if err := sink.Init(ctx); err != nil {
			return fmt.Errorf("failed to init questdb sink: %w", err)
		}

		defer func() {
			if err := sink.Close(context.Background()); err != nil {
				l.Error("failed to close questdb sink", err)
			}
		}()

		opts = append(opts, ringbench.WithStatsSink(sink))
	}

	bench, err := ringbench.NewBench(cfg, opts...)
	if err != nil {
		return err
	}

	report, err := bench.Run(ctx)
	if err != nil {
		return err
	}

	for idx, res := range report.Consumers {
		l.Info("reader report", "reader", idx, "read", res.Read, "waits", res.Waits)
	}

	return nil
}

func main() {
	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelCtx()

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Starting performance test with config: %+v\n", *cfg)

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
