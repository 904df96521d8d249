package ringbench

import (
	"context"
	"errors"
	"sync"
)

type Stage interface {
	Init(ctx context.Context) error
	Run(ctx context.Context) error
	Stop()
}

type Pipeline struct {
	stages []Stage

	wg        *sync.WaitGroup
	isRunning bool
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		stages: []Stage{},

		wg:        &sync.WaitGroup{},
		isRunning: false,
	}
}

func (p *Pipeline) AddStage(stage Stage) {
	if p.isRunning {
		return
	}

	p.stages = append(p.stages, stage)
}

// Init initializes the stages in insertion order.
// Consumers must be added before the producer, so that their readers are
// registered before the first frame is written.
func (p *Pipeline) Init(ctx context.Context) error {
	for _, stage := range p.stages {
		if err := stage.Init(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Run runs every stage in its own goroutine and waits for all of them to return.
func (p *Pipeline) Run(ctx context.Context) error {
	p.isRunning = true

	errs := make([]error, len(p.stages))

	p.wg.Add(len(p.stages))

	for idx, stage := range p.stages {
		go func() {
			defer p.wg.Done()
			errs[idx] = stage.Run(ctx)
		}()
	}

	p.wg.Wait()

	return errors.Join(errs...)
}

func (p *Pipeline) Stop() {
	for _, stage := range p.stages {
		stage.Stop()
	}
}
