package server

import (
	"context"
	"sync"

	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// Pipeline is an asynchronous work queue served by a fixed number of workers.
// Inbound activities are acknowledged first and processed here afterwards.
type Pipeline struct {
	jobs    chan job
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

type job struct {
	name string
	run  func(ctx context.Context)
}

// NewPipeline makes a pipeline holding up to size waiting jobs.
func NewPipeline(workers, size int) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 100
	}
	return &Pipeline{
		jobs:    make(chan job, size),
		workers: workers,
	}
}

// Submit queues a job without blocking. It returns false when the queue is full.
func (p *Pipeline) Submit(name string, run func(ctx context.Context)) bool {
	select {
	case p.jobs <- job{name: name, run: run}:
		telemetry.Increment("pipeline_submitted", 1)
		return true
	default:
		telemetry.Increment("pipeline_full", 1)
		return false
	}
}

// Run starts the workers and blocks until ctx is done and they have stopped.
// Jobs run with ctx, so they see cancellation at shutdown.
func (p *Pipeline) Run(ctx context.Context) {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.work(ctx)
		}
	})
	<-ctx.Done()
	p.wg.Wait()
}

func (p *Pipeline) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.runJob(ctx, j)
		}
	}
}

func (p *Pipeline) runJob(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Log("pipeline job %s panicked: %v", j.name, r)
			telemetry.Increment("pipeline_panics", 1)
		}
	}()
	telemetry.Trace("pipeline running %s", j.name)
	j.run(ctx)
	telemetry.Increment("pipeline_completed", 1)
}
