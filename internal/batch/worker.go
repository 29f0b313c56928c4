package batch

import (
	"context"
	"sync"
)

// fileResult carries the outcome of analyzing a single file.
type fileResult struct {
	stats *FileStats
	err   error
}

// workerPool fans file analysis out over a fixed set of goroutines and
// funnels outcomes back on one results channel.
type workerPool struct {
	workers int
	jobs    chan string
	results chan fileResult
	run     func(ctx context.Context, path string) (*FileStats, error)
	wg      sync.WaitGroup
}

func newWorkerPool(workers, queueSize int, run func(ctx context.Context, path string) (*FileStats, error)) *workerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers * 2
	}
	return &workerPool{
		workers: workers,
		jobs:    make(chan string, queueSize),
		results: make(chan fileResult, queueSize),
		run:     run,
	}
}

// start launches the workers. The results channel closes after every
// worker has drained the job queue, so callers can range over it.
func (p *workerPool) start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case path, ok := <-p.jobs:
					if !ok {
						return
					}
					stats, err := p.run(ctx, path)
					select {
					case p.results <- fileResult{stats: stats, err: err}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// submit queues a file for analysis. It returns false once ctx is done.
func (p *workerPool) submit(ctx context.Context, path string) bool {
	select {
	case <-ctx.Done():
		return false
	case p.jobs <- path:
		return true
	}
}

// finish signals that no more jobs are coming. Results keep flowing
// until in-flight work completes.
func (p *workerPool) finish() {
	close(p.jobs)
}
