package orchestrator

import (
	"context"
	"time"
)

// BatchItem is one named report in a batch run (spec.md §4.11 batch mode).
type BatchItem struct {
	Name string
	Text string
}

// BatchResult is one item's outcome. Errors are captured, never thrown.
type BatchResult struct {
	Name          string
	OK            bool
	URL           string
	Error         string
	CreatedSlides int
}

// BatchOptions configures Batch.
type BatchOptions struct {
	SlideCount int
	ModelID    string
	ImageSize  string
	// InterItemSleep, if positive, is paused between items (spec.md §4.11:
	// "optional inter-item sleep").
	InterItemSleep time.Duration
}

// Batch processes items sequentially, using a deterministic idempotency key
// derived from each item's text so reruns of the same batch are idempotent
// (spec.md §4.11 batch mode).
func (o *Orchestrator) Batch(ctx context.Context, items []BatchItem, opts BatchOptions) []BatchResult {
	results := make([]BatchResult, 0, len(items))
	for i, item := range items {
		res, err := o.Run(ctx, Request{
			ReportText:      item.Text,
			ClientRequestID: BatchIdempotencyKey(item.Text),
			SlideCount:      opts.SlideCount,
			ModelID:         opts.ModelID,
			ImageSize:       opts.ImageSize,
		})
		if err != nil {
			results = append(results, BatchResult{Name: item.Name, OK: false, Error: err.Error()})
		} else {
			results = append(results, BatchResult{
				Name: item.Name, OK: true, URL: res.URL, CreatedSlides: res.CreatedSlides,
			})
		}

		if opts.InterItemSleep > 0 && i < len(items)-1 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(opts.InterItemSleep):
			}
		}
	}
	return results
}
