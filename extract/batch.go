package extract

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hazyhaar/docintel/fault"
)

// ItemResult is one slot of a batch outcome: either a successful result or
// the error that failed this item. Slot order matches input order.
type ItemResult struct {
	Path   string  `json:"path"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// MarshalJSON inlines the error as an error-metadata object so batch
// envelopes survive serialization.
func (r ItemResult) MarshalJSON() ([]byte, error) {
	type alias struct {
		Path   string     `json:"path"`
		Result *Result    `json:"result,omitempty"`
		Error  *ErrorMeta `json:"error,omitempty"`
	}
	a := alias{Path: r.Path, Result: r.Result}
	if r.Err != nil {
		a.Error = &ErrorMeta{
			ErrorType: string(fault.KindOf(r.Err)),
			Message:   r.Err.Error(),
		}
	}
	return json.Marshal(a)
}

// Batch extracts many files concurrently. Concurrency is bounded by
// cfg.MaxConcurrent; excess work queues on the semaphore. Per-item failures
// are isolated — one bad file never aborts its siblings — and the returned
// slice preserves input order regardless of completion order. An empty
// input returns an empty, non-nil slice.
func (e *Engine) Batch(ctx context.Context, paths []string, cfg *Config) []ItemResult {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()

	results := make([]ItemResult, len(paths))
	if len(paths) == 0 {
		return results
	}

	sem := make(chan struct{}, cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for i, path := range paths {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i] = ItemResult{Path: path, Err: fault.FromPanic(r)}
				}
			}()

			res, err := e.ExtractFile(ctx, path, cfg)
			results[i] = ItemResult{Path: path, Result: res, Err: err}
		}(i, path)
	}
	wg.Wait()

	return results
}
