package ringbench

import (
	"context"
	"fmt"

	"github.com/squadracorsepolito/ringbench/consumer"
	"github.com/squadracorsepolito/ringbench/internal"
	"github.com/squadracorsepolito/ringbench/producer"
	"github.com/squadracorsepolito/ringbench/ringbuffer"
)

// Report is the outcome of a benchmark run.
type Report struct {
	Producer  producer.Result
	Consumers []consumer.Result
}

// Bench wires a producer and its consumers around a single ring buffer.
type Bench struct {
	tel *internal.Telemetry

	cfg *Config

	rb        *ringbuffer.RingBuffer
	producer  *producer.Stage
	consumers []*consumer.Stage

	pipeline *Pipeline
}

type Option func(*benchOptions)

type benchOptions struct {
	producerOpts []producer.Option
	consumerOpts []consumer.Option
	sink         internal.StatsSink
}

// WithProducerOptions forwards options to the producer stage.
func WithProducerOptions(opts ...producer.Option) Option {
	return func(o *benchOptions) {
		o.producerOpts = append(o.producerOpts, opts...)
	}
}

// WithConsumerOptions forwards options to every consumer stage.
func WithConsumerOptions(opts ...consumer.Option) Option {
	return func(o *benchOptions) {
		o.consumerOpts = append(o.consumerOpts, opts...)
	}
}

// WithStatsSink forwards the per-second stats of every stage to sink.
func WithStatsSink(sink internal.StatsSink) Option {
	return func(o *benchOptions) {
		o.sink = sink
	}
}

func NewBench(cfg *Config, opts ...Option) (*Bench, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &benchOptions{}
	for _, opt := range opts {
		opt(o)
	}

	rb, err := ringbuffer.New(cfg.SlotBytes, cfg.SlotCount)
	if err != nil {
		return nil, err
	}

	b := &Bench{
		tel: internal.NewTelemetry("bench", "ringbench"),

		cfg: cfg,

		rb:        rb,
		consumers: make([]*consumer.Stage, 0, cfg.Readers),

		pipeline: NewPipeline(),
	}

	// Consumers first, so readers exist before the first write
	for idx := range cfg.Readers {
		stage := consumer.NewStage(rb, cfg.ConsumerConfig(idx), o.consumerOpts...)
		if o.sink != nil {
			stage.Stats().SetSink(o.sink)
		}

		b.consumers = append(b.consumers, stage)
		b.pipeline.AddStage(stage)
	}

	b.producer = producer.NewStage(rb, cfg.ProducerConfig(), o.producerOpts...)
	if o.sink != nil {
		b.producer.Stats().SetSink(o.sink)
	}
	b.pipeline.AddStage(b.producer)

	return b, nil
}

// RingBuffer returns the shared ring buffer.
func (b *Bench) RingBuffer() *ringbuffer.RingBuffer {
	return b.rb
}

// Run initializes the stages and blocks until the producer has finished
// and every consumer has drained the ring buffer.
func (b *Bench) Run(ctx context.Context) (*Report, error) {
	b.tel.LogInfo("starting",
		"slot_bytes", b.cfg.SlotBytes, "slot_count", b.cfg.SlotCount,
		"duration", b.cfg.Duration, "slots_per_second", b.cfg.SlotsPerSecond,
		"readers", b.cfg.Readers, "wait_mode", b.cfg.WaitMode)

	if err := b.pipeline.Init(ctx); err != nil {
		b.pipeline.Stop()
		return nil, fmt.Errorf("failed to init pipeline: %w", err)
	}
	defer b.pipeline.Stop()

	runErr := b.pipeline.Run(ctx)

	report := &Report{
		Producer:  b.producer.Result(),
		Consumers: make([]consumer.Result, 0, len(b.consumers)),
	}
	for _, stage := range b.consumers {
		report.Consumers = append(report.Consumers, stage.Result())
	}

	b.tel.LogInfo("finished",
		"written", report.Producer.Written, "pending_reader", report.Producer.PendingReader,
		"behind", report.Producer.Behind)

	return report, runErr
}
