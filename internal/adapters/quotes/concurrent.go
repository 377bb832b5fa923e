package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/riskgate/internal/domain"
)

// fetchBatchesConcurrent fetches every batch with a small worker pool. The
// shared rate limiter still paces requests; workers only overlap latency.
// Results keep batch order. The first failing batch fails the whole fetch.
func (c *Client) fetchBatchesConcurrent(ctx context.Context, batches [][]string) ([]domain.Quote, error) {
	workers := min(c.workers, len(batches))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]domain.Quote, len(batches))
	workCh := make(chan int, len(batches))
	for i := range batches {
		workCh <- i
	}
	close(workCh)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				if ctx.Err() != nil {
					return
				}
				got, err := c.fetchBatch(ctx, batches[i])
				if err != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
						cancel()
					})
					return
				}
				results[i] = got
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	var out []domain.Quote
	for _, r := range results {
		out = append(out, r...)
	}
	slog.Debug("quotes: concurrent fetch complete",
		"batches", len(batches),
		"workers", workers,
		"priced", len(out),
	)
	return out, nil
}
