package catalogue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skinmatch/platform/internal/descriptor"
	"github.com/skinmatch/platform/internal/pixel"
	"github.com/skinmatch/platform/internal/resilience"
	"github.com/skinmatch/platform/internal/trace"
)

// Job asks the indexer to describe Item from Image.
type Job struct {
	Item  Item
	Image string
}

// Indexer accumulates items that lack descriptors and extracts them in
// batches, writing results back to the store.
type Indexer struct {
	store      Store
	source     ImageSource
	extractor  *descriptor.Extractor
	breaker    *resilience.Breaker
	maxSize    int
	flushDelay time.Duration

	mu      sync.Mutex
	jobs    []Job
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup

	indexed atomic.Int64
	failed  atomic.Int64
}

// NewIndexer creates an indexer.
func NewIndexer(store Store, source ImageSource, extractor *descriptor.Extractor, maxSize int, flushDelay time.Duration) *Indexer {
	if maxSize <= 0 {
		maxSize = DefaultIndexBatchSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultIndexFlushDelay
	}
	return &Indexer{
		store:      store,
		source:     source,
		extractor:  extractor,
		breaker:    resilience.NewBreaker(resilience.BreakerConfig{Name: "image_source"}),
		maxSize:    maxSize,
		flushDelay: flushDelay,
		jobs:       make([]Job, 0, maxSize),
	}
}

// Add queues an item. It reports false once the indexer is stopped.
func (x *Indexer) Add(item Item, image string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.stopped {
		return false
	}

	x.jobs = append(x.jobs, Job{Item: item, Image: image})

	if len(x.jobs) >= x.maxSize {
		x.flushLocked()
		return true
	}

	if x.timer == nil {
		x.timer = time.AfterFunc(x.flushDelay, x.timerFlush)
	} else {
		x.timer.Reset(x.flushDelay)
	}
	return true
}

func (x *Indexer) timerFlush() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.flushLocked()
}

func (x *Indexer) flushLocked() {
	if len(x.jobs) == 0 {
		return
	}
	if x.timer != nil {
		x.timer.Stop()
		x.timer = nil
	}
	jobs := x.jobs
	x.jobs = make([]Job, 0, x.maxSize)

	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.run(jobs)
	}()
}

func (x *Indexer) run(jobs []Job) {
	ctx, span := trace.StartSpan(context.Background(), "catalogue_index_flush")
	defer span.End()
	span.SetAttr("count", len(jobs))

	log := trace.Logger(ctx)
	done := 0
	for _, j := range jobs {
		buf, err := resilience.Call(x.breaker, func() (*pixel.Buffer, error) {
			return x.source.Open(ctx, j.Image)
		})
		if err != nil {
			x.failed.Add(1)
			log.Warn("index image failed", "id", j.Item.ID, "image", j.Image, "error", err)
			continue
		}
		j.Item.Descriptor = x.extractor.Extract(buf)
		if err := x.store.Put(j.Item); err != nil {
			x.failed.Add(1)
			log.Warn("index store failed", "id", j.Item.ID, "error", err)
			continue
		}
		x.indexed.Add(1)
		done++
	}
	span.SetAttr("indexed", done)
	log.Debug("index batch done", "indexed", done, "submitted", len(jobs))
}

// Flush starts work on queued items immediately.
func (x *Indexer) Flush() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.flushLocked()
}

// Wait flushes and blocks until every queued item is processed.
func (x *Indexer) Wait() {
	x.Flush()
	x.wg.Wait()
}

// Stop rejects further items and drains the queue.
func (x *Indexer) Stop() {
	x.mu.Lock()
	x.stopped = true
	x.flushLocked()
	x.mu.Unlock()
	x.wg.Wait()
}

// Stats returns how many items were indexed and how many failed.
func (x *Indexer) Stats() (indexed, failed int64) {
	return x.indexed.Load(), x.failed.Load()
}
