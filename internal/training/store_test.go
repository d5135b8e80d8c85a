package training

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listing-matcher/internal/match"
	"github.com/listing-matcher/internal/store"
)

func example(i int, correct bool) Example {
	return Example{
		Features:  match.FeatureVector{TextualSimilarity: 0.5, DistanceMeters: float64(i)},
		IsCorrect: correct,
		Timestamp: int64(i),
	}
}

func TestRecord_EvictsOldest(t *testing.T) {
	s := NewStore(DefaultLimits())
	for i := 0; i < 1001; i++ {
		s.Record(example(i, i%2 == 0))
	}

	exs := s.Examples()
	require.Len(t, exs, 1000)
	assert.Equal(t, int64(1), exs[0].Timestamp, "oldest evicted first")
	assert.Equal(t, int64(1000), exs[999].Timestamp)

	pos, neg, total := s.Counts()
	assert.Equal(t, 1000, total)
	assert.Equal(t, 500, pos)
	assert.Equal(t, 500, neg)
}

func TestCounts_TrackEvictedLabels(t *testing.T) {
	s := NewStore(Limits{MaxExamples: 3})
	s.Record(example(0, true))
	s.Record(example(1, true))
	s.Record(example(2, false))
	s.Record(example(3, false))

	pos, neg, total := s.Counts()
	assert.Equal(t, 1, pos)
	assert.Equal(t, 2, neg)
	assert.Equal(t, 3, total)
}

func TestReadyForRetrain(t *testing.T) {
	tests := []struct {
		name     string
		pos, neg int
		ready    bool
	}{
		{"4 positive 10 negative", 4, 10, false},
		{"10 positive 4 negative", 10, 4, false},
		{"5 positive 5 negative", 5, 5, false},
		{"5 positive 15 negative", 5, 15, true},
		{"10 positive 10 negative", 10, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(DefaultLimits())
			for i := 0; i < tt.pos; i++ {
				s.Record(example(i, true))
			}
			for i := 0; i < tt.neg; i++ {
				s.Record(example(i, false))
			}
			assert.Equal(t, tt.ready, s.ReadyForRetrain())
		})
	}
}

func TestExamples_ReturnsCopy(t *testing.T) {
	s := NewStore(DefaultLimits())
	s.Record(example(1, true))

	exs := s.Examples()
	exs[0].IsCorrect = false

	pos, _, _ := s.Counts()
	assert.Equal(t, 1, pos)
	assert.True(t, s.Examples()[0].IsCorrect)
}

func TestExportImport(t *testing.T) {
	s := NewStore(DefaultLimits())
	for i := 0; i < 7; i++ {
		s.Record(example(i, i < 3))
	}

	data, err := s.ExportAll()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":1`)

	restored := NewStore(DefaultLimits())
	restored.Record(example(99, true))
	require.NoError(t, restored.ImportAll(data))

	assert.Equal(t, s.Examples(), restored.Examples())
	pos, neg, total := restored.Counts()
	assert.Equal(t, 3, pos)
	assert.Equal(t, 4, neg)
	assert.Equal(t, 7, total)
}

func TestImportAll_AppliesCap(t *testing.T) {
	big := NewStore(Limits{MaxExamples: 10})
	for i := 0; i < 10; i++ {
		big.Record(example(i, true))
	}
	data, err := big.ExportAll()
	require.NoError(t, err)

	small := NewStore(Limits{MaxExamples: 4})
	require.NoError(t, small.ImportAll(data))
	exs := small.Examples()
	require.Len(t, exs, 4)
	assert.Equal(t, int64(6), exs[0].Timestamp)
}

func TestImportAll_Invalid(t *testing.T) {
	s := NewStore(DefaultLimits())
	assert.True(t, errors.Is(s.ImportAll([]byte("nope")), match.ErrInvalidInput))
	assert.True(t, errors.Is(s.ImportAll([]byte(`{"version":9,"examples":[]}`)), match.ErrInvalidInput))
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	s := NewStore(DefaultLimits())
	require.NoError(t, s.Load(ctx, kv))
	_, _, total := s.Counts()
	assert.Zero(t, total)

	s.Record(example(1, true))
	s.Record(example(2, false))
	require.NoError(t, s.Save(ctx, kv))

	loaded := NewStore(DefaultLimits())
	require.NoError(t, loaded.Load(ctx, kv))
	assert.Equal(t, s.Examples(), loaded.Examples())
}

func TestConcurrentRecord(t *testing.T) {
	s := NewStore(Limits{MaxExamples: 50})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Record(example(g*100+i, i%2 == 0))
				s.Counts()
			}
		}(g)
	}
	wg.Wait()

	pos, neg, total := s.Counts()
	assert.Equal(t, 50, total)
	assert.Equal(t, total, pos+neg)
}

func TestReset(t *testing.T) {
	s := NewStore(DefaultLimits())
	s.Record(example(1, true))
	s.Reset()
	pos, neg, total := s.Counts()
	assert.Zero(t, pos+neg+total)
}
