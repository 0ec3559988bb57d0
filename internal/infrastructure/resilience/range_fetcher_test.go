package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func newTestRangeFetcher(windowDays int) *RangeFetcher {
	f := NewRangeFetcher(RangeFetcherConfig{
		WindowDays:      windowDays,
		InterChunkDelay: time.Second,
	}, nil)
	return f.WithSleep(func(ctx context.Context, d time.Duration) error { return nil })
}

func TestChunks_NonOverlapping(t *testing.T) {
	f := newTestRangeFetcher(30)

	// 95 days at 30-day windows: 4 chunks, boundaries one day apart
	chunks := f.Chunks(day(0), day(95))
	require.Len(t, chunks, 4)

	assert.Equal(t, day(0), chunks[0].Start)
	assert.Equal(t, day(30), chunks[0].End)
	assert.Equal(t, day(31), chunks[1].Start)
	assert.Equal(t, day(61), chunks[1].End)
	assert.Equal(t, day(62), chunks[2].Start)
	assert.Equal(t, day(92), chunks[2].End)
	assert.Equal(t, day(93), chunks[3].Start)
	assert.Equal(t, day(95), chunks[3].End)

	for i := 1; i < len(chunks); i++ {
		assert.True(t, chunks[i].Start.After(chunks[i-1].End), "chunk %d overlaps previous", i)
	}
}

func TestChunks_ShortRange(t *testing.T) {
	f := newTestRangeFetcher(30)

	chunks := f.Chunks(day(0), day(10))
	require.Len(t, chunks, 1)
	assert.Equal(t, day(0), chunks[0].Start)
	assert.Equal(t, day(10), chunks[0].End)
}

func TestChunks_EmptyRange(t *testing.T) {
	f := newTestRangeFetcher(30)
	assert.Empty(t, f.Chunks(day(5), day(5)))
	assert.Empty(t, f.Chunks(day(5), day(1)))
}

func TestFetchRange_CollectsAllChunks(t *testing.T) {
	f := newTestRangeFetcher(30)

	var windows [][2]time.Time
	got, err := FetchRange(context.Background(), f, day(0), day(95),
		func(s string) string { return s },
		func(ctx context.Context, start, end time.Time) ([]string, error) {
			windows = append(windows, [2]time.Time{start, end})
			return []string{start.Format("01-02")}, nil
		},
	)

	require.NoError(t, err)
	assert.Len(t, windows, 4)
	assert.Equal(t, []string{"01-01", "02-01", "03-04", "04-04"}, got)
}

func TestFetchRange_ChunkFailureContinues(t *testing.T) {
	f := newTestRangeFetcher(30)

	call := 0
	got, err := FetchRange(context.Background(), f, day(0), day(95),
		func(s string) string { return s },
		func(ctx context.Context, start, end time.Time) ([]string, error) {
			call++
			if call == 2 {
				return nil, errors.New("provider down")
			}
			return []string{start.Format("01-02")}, nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 4, call)
	assert.Len(t, got, 3)
}

func TestFetchRange_ContextCancelAborts(t *testing.T) {
	f := newTestRangeFetcher(30)
	ctx, cancel := context.WithCancel(context.Background())

	call := 0
	_, err := FetchRange(ctx, f, day(0), day(95),
		func(s string) string { return s },
		func(ctx context.Context, start, end time.Time) ([]string, error) {
			call++
			cancel()
			return nil, ctx.Err()
		},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, call)
}

func TestFetchRange_DedupeKeepsLast(t *testing.T) {
	f := newTestRangeFetcher(30)

	type rec struct {
		id  string
		val int
	}
	call := 0
	got, err := FetchRange(context.Background(), f, day(0), day(40),
		func(r rec) string { return r.id },
		func(ctx context.Context, start, end time.Time) ([]rec, error) {
			call++
			if call == 1 {
				return []rec{{"a", 1}, {"b", 1}}, nil
			}
			return []rec{{"a", 2}, {"c", 1}}, nil
		},
	)

	require.NoError(t, err)
	// Last occurrence wins, first-seen order preserved
	require.Len(t, got, 3)
	assert.Equal(t, rec{"a", 2}, got[0])
	assert.Equal(t, rec{"b", 1}, got[1])
	assert.Equal(t, rec{"c", 1}, got[2])
}

func TestFetchRange_InterChunkDelay(t *testing.T) {
	var waits []time.Duration
	f := NewRangeFetcher(RangeFetcherConfig{
		WindowDays:      30,
		InterChunkDelay: 1200 * time.Millisecond,
	}, nil).WithSleep(func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})

	_, err := FetchRange(context.Background(), f, day(0), day(95),
		func(s string) string { return s },
		func(ctx context.Context, start, end time.Time) ([]string, error) {
			return nil, nil
		},
	)

	require.NoError(t, err)
	// No wait before the first chunk
	require.Len(t, waits, 3)
	for _, w := range waits {
		assert.Equal(t, 1200*time.Millisecond, w)
	}
}
