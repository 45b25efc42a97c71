package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akazachkov/queryflow/internal/archive"
	"github.com/akazachkov/queryflow/internal/process"
	"github.com/akazachkov/queryflow/internal/queue"
	"github.com/akazachkov/queryflow/internal/record"
)

// PoolConfig configures the worker supervisor.
type PoolConfig struct {
	// Count is the number of concurrently running workers. Each holds at
	// most one in-flight delivery at a time.
	Count int
	// MaxJobsPerWorker is the retirement quota passed to each worker.
	MaxJobsPerWorker int
	// ResultTTL is the job record lifetime used for rebuilt records.
	ResultTTL time.Duration
	// ConsumerPrefix namespaces the queue consumer names of this process.
	ConsumerPrefix string
}

// Pool supervises a fixed number of workers, replacing each one when it
// retires after its job quota. Replacement consumers get fresh names so any
// deliveries stranded by a crashed predecessor are picked up by the queue's
// idle-reclaim path.
type Pool struct {
	cfg       PoolConfig
	queue     queue.Queue
	records   record.Store
	archive   archive.Archive
	processor process.Processor

	wg     sync.WaitGroup
	nextID atomic.Int64
}

func NewPool(cfg PoolConfig, q queue.Queue, records record.Store,
	arch archive.Archive, p process.Processor) *Pool {
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	if cfg.ConsumerPrefix == "" {
		cfg.ConsumerPrefix = "worker"
	}
	return &Pool{
		cfg:       cfg,
		queue:     q,
		records:   records,
		archive:   arch,
		processor: p,
	}
}

// Run blocks until the context is cancelled and all workers have drained.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.cfg.Count; i++ {
		p.wg.Add(1)
		go p.supervise(ctx)
	}
	p.wg.Wait()
}

func (p *Pool) supervise(ctx context.Context) {
	defer p.wg.Done()
	for ctx.Err() == nil {
		consumer := fmt.Sprintf("%s-%d", p.cfg.ConsumerPrefix, p.nextID.Add(1))
		w := New(p.queue, p.records, p.archive, p.processor,
			consumer, p.cfg.MaxJobsPerWorker, p.cfg.ResultTTL)
		slog.Info("worker spawned", "consumer", consumer)
		if err := w.Run(ctx); err != nil {
			return
		}
		// Retired after its quota; loop spawns a replacement.
	}
}
