package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Chunked range fetching
// ---------------------------------------------------------------------------

// RangeFetcherConfig holds settings for walking a long historical window in
// provider-sized chunks
type RangeFetcherConfig struct {
	// WindowDays is the widest date range the provider accepts per call
	WindowDays int
	// InterChunkDelay is a fixed pause between chunks to respect global
	// rate limits; chunks are deliberately sequential, never parallel
	InterChunkDelay time.Duration
}

// DefaultRangeFetcherConfig matches the common 30-day provider window
func DefaultRangeFetcherConfig() RangeFetcherConfig {
	return RangeFetcherConfig{
		WindowDays:      30,
		InterChunkDelay: 1200 * time.Millisecond,
	}
}

// RangeFetcher decomposes [start, end) into non-overlapping windows and
// walks them sequentially. Chunk boundaries advance by one day past the
// previous chunk's end so no day is requested twice.
type RangeFetcher struct {
	config RangeFetcherConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRangeFetcher creates a range fetcher
func NewRangeFetcher(config RangeFetcherConfig, logger *zap.Logger) *RangeFetcher {
	if config.WindowDays <= 0 {
		config.WindowDays = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RangeFetcher{config: config, logger: logger, sleep: sleepContext}
}

// WithSleep overrides the inter-chunk wait, used by tests
func (f *RangeFetcher) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *RangeFetcher {
	clone := *f
	clone.sleep = sleep
	return &clone
}

// Chunk is one provider-sized sub-window of the requested range
type Chunk struct {
	Start time.Time
	End   time.Time
}

// Chunks returns the non-overlapping sub-windows covering [start, end)
func (f *RangeFetcher) Chunks(start, end time.Time) []Chunk {
	var chunks []Chunk
	for cur := start; cur.Before(end); {
		chunkEnd := cur.AddDate(0, 0, f.config.WindowDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, Chunk{Start: cur, End: chunkEnd})
		cur = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks
}

// FetchRange walks the range chunk by chunk, calling fetch for each window.
// fetch is expected to already be wrapped by the call executor. A chunk's
// terminal failure is logged and the walk continues: a full historical sync
// is non-atomic by design, and re-invoking with the same range re-fetches
// idempotently. Results are deduplicated by keyFn, keeping the last-seen
// occurrence.
func FetchRange[T any](
	ctx context.Context,
	f *RangeFetcher,
	start, end time.Time,
	keyFn func(T) string,
	fetch func(ctx context.Context, start, end time.Time) ([]T, error),
) ([]T, error) {
	chunks := f.Chunks(start, end)

	var all []T
	failed := 0
	for i, chunk := range chunks {
		if i > 0 && f.config.InterChunkDelay > 0 {
			if err := f.sleep(ctx, f.config.InterChunkDelay); err != nil {
				return nil, err
			}
		}

		records, err := fetch(ctx, chunk.Start, chunk.End)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			f.logger.Warn("chunk fetch failed, continuing",
				zap.Time("chunk_start", chunk.Start),
				zap.Time("chunk_end", chunk.End),
				zap.Int("chunk", i+1),
				zap.Int("total_chunks", len(chunks)),
				zap.Error(err),
			)
			continue
		}
		all = append(all, records...)
	}

	deduped := dedupeKeepLast(all, keyFn)
	f.logger.Debug("range fetch complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("failed_chunks", failed),
		zap.Int("records", len(deduped)),
	)
	return deduped, nil
}

// dedupeKeepLast removes duplicate keys, keeping the last occurrence while
// preserving first-seen order
func dedupeKeepLast[T any](records []T, keyFn func(T) string) []T {
	if len(records) == 0 {
		return records
	}
	index := make(map[string]int, len(records))
	result := make([]T, 0, len(records))
	for _, rec := range records {
		key := keyFn(rec)
		if pos, seen := index[key]; seen {
			result[pos] = rec
			continue
		}
		index[key] = len(result)
		result = append(result, rec)
	}
	return result
}
