package cassandra

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// bucketLookup is one unit of index-lookup work: a single partition key
// at a single time bucket, fanned out concurrently and drained as
// futures complete.
//
// A bounded semaphore caps in-flight lookups, and results stream back
// over a channel rather than behind a mutex-guarded slice, so the
// incremental-limit check can react to each result as it lands instead
// of waiting for every lookup to finish.
type bucketLookup struct {
	bucket int64
	fetch  func(ctx context.Context) ([]RowKey, error)
}

// lookupResult pairs a completed lookup's output with any error it hit.
type lookupResult struct {
	bucket int64
	keys   []RowKey
	err    error
}

// fanOutLookups runs every lookup concurrently, bounded by maxConcurrent
// in-flight goroutines, and streams results back over the returned
// channel as they complete. The channel is closed once every lookup has
// reported in or the context is cancelled.
func fanOutLookups(ctx context.Context, lookups []bucketLookup, maxConcurrent int64) <-chan lookupResult {
	out := make(chan lookupResult, len(lookups))
	if len(lookups) == 0 {
		close(out)
		return out
	}

	sem := semaphore.NewWeighted(maxConcurrent)
	var wg sync.WaitGroup

	for _, lk := range lookups {
		if err := sem.Acquire(ctx, 1); err != nil {
			out <- lookupResult{bucket: lk.bucket, err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func(lk bucketLookup) {
			defer wg.Done()
			defer sem.Release(1)

			keys, err := lk.fetch(ctx)
			out <- lookupResult{bucket: lk.bucket, keys: keys, err: err}
		}(lk)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
