package review

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/mcqreview/internal/domain"
	"github.com/conorfennell/mcqreview/internal/sm2"
	"github.com/conorfennell/mcqreview/internal/storage"
)

// flakyBackend wraps a MemoryBackend and fails writes on demand.
type flakyBackend struct {
	*storage.MemoryBackend
	putErr error
	getErr error
}

func (f *flakyBackend) Put(ctx context.Context, key string, value []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryBackend.Put(ctx, key, value)
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryBackend.Get(ctx, key)
}

var baseTime = time.UnixMilli(1_700_000_000_000)

func TestRecordReviewScenario(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, storage.NewMemory())

	steps := []struct {
		correct      bool
		wantInterval int
		wantEase     float64
	}{
		{true, 1, 2.6},
		{true, 3, 2.7},
		{true, 8, 2.8},
		{false, 1, 2.6},
	}

	now := baseTime
	for i, step := range steps {
		rec, err := store.RecordReview(ctx, 4, 2, step.correct, now)
		require.NoError(t, err)

		assert.Equal(t, step.wantInterval, rec.Interval, "step %d interval", i+1)
		assert.InDelta(t, step.wantEase, rec.EaseFactor, 1e-9, "step %d ease", i+1)
		assert.Equal(t, i+1, rec.ReviewCount, "step %d count", i+1)
		assert.Equal(t, step.correct, rec.IsCorrect)
		assert.Equal(t, 4, rec.QuestionID)
		assert.Equal(t, 2, rec.ChapterID)
		assert.Equal(t, now.UnixMilli(), rec.LastReviewDate)
		assert.Equal(t, rec.LastReviewDate+int64(rec.Interval)*sm2.DayMillis, rec.NextReviewDate)

		stored, ok := store.Get(2, 4)
		require.True(t, ok)
		assert.Equal(t, rec, stored)

		now = now.Add(time.Duration(rec.Interval) * 24 * time.Hour)
	}
}

func TestRecordReviewCreatesDefaultRecord(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, storage.NewMemory())

	_, ok := store.Get(1, 1)
	require.False(t, ok)

	rec, err := store.RecordReview(ctx, 1, 1, false, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ReviewCount)
	assert.Equal(t, 1, rec.Interval)
	assert.InDelta(t, 2.3, rec.EaseFactor, 1e-9)
	assert.False(t, rec.IsCorrect)
}

func TestRecordReviewKeepsChaptersApart(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, storage.NewMemory())

	_, err := store.RecordReview(ctx, 1, 1, true, baseTime)
	require.NoError(t, err)
	_, err = store.RecordReview(ctx, 1, 2, false, baseTime)
	require.NoError(t, err)

	snap := store.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[domain.NewReviewKey(1, 1)].IsCorrect)
	assert.False(t, snap[domain.NewReviewKey(2, 1)].IsCorrect)
}

func TestRecordsStayConsistentOverManyAnswers(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, storage.NewMemory())

	now := baseTime
	for i := 0; i < 60; i++ {
		correct := i%4 != 3
		rec, err := store.RecordReview(ctx, i%5, 1, correct, now)
		require.NoError(t, err)
		now = now.Add(time.Hour)

		assert.GreaterOrEqual(t, rec.EaseFactor, 1.3)
		assert.GreaterOrEqual(t, rec.Interval, 0)
	}

	for _, rec := range store.Snapshot() {
		assert.Equal(t, rec.LastReviewDate+int64(rec.Interval)*sm2.DayMillis, rec.NextReviewDate)
		assert.Equal(t, 12, rec.ReviewCount)
	}
}

func TestPersistReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "reviews.db"))
	require.NoError(t, err)
	defer backend.Close()

	store := NewStore(ctx, backend)
	for q := 1; q <= 5; q++ {
		for c := 1; c <= 3; c++ {
			_, err := store.RecordReview(ctx, q, c, (q+c)%2 == 0, baseTime.Add(time.Duration(q*c)*time.Minute))
			require.NoError(t, err)
		}
	}
	_, err = store.RecordReview(ctx, 1, 1, true, baseTime.Add(48*time.Hour))
	require.NoError(t, err)

	reopened := NewStore(ctx, backend)
	assert.Equal(t, store.Snapshot(), reopened.Snapshot())
	assert.Len(t, reopened.Snapshot(), 15)
}

func TestSnapshotKeyIsolation(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()

	a := NewStore(ctx, backend, WithSnapshotKey("a"))
	_, err := a.RecordReview(ctx, 1, 1, true, baseTime)
	require.NoError(t, err)

	b := NewStore(ctx, backend, WithSnapshotKey("b"))
	assert.Empty(t, b.Snapshot())
}

func TestLoadDegradesToEmpty(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name    string
		payload []byte
		getErr  error
	}{
		{name: "missing"},
		{name: "empty", payload: []byte{}},
		{name: "not json", payload: []byte("{{{")},
		{name: "wrong shape", payload: []byte(`[1,2,3]`)},
		{name: "bad key", payload: []byte(`{"oops":{"questionId":1,"chapterId":1,"easeFactor":2.5}}`)},
		{name: "backend failure", getErr: errors.New("disk on fire")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &flakyBackend{MemoryBackend: storage.NewMemory(), getErr: tc.getErr}
			if tc.payload != nil {
				require.NoError(t, backend.MemoryBackend.Put(ctx, DefaultSnapshotKey, tc.payload))
			}

			store := NewStore(ctx, backend)
			assert.NotNil(t, store.Load(ctx))
			assert.Empty(t, store.Load(ctx))
			assert.Empty(t, store.Snapshot())

			backend.getErr = nil
			_, err := store.RecordReview(ctx, 1, 1, true, baseTime)
			assert.NoError(t, err, "store keeps working after a bad load")
		})
	}
}

func TestLoadDropsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	payload := `{
		"1_1": {"questionId":1,"chapterId":1,"lastReviewDate":0,"reviewCount":1,"isCorrect":true,"nextReviewDate":86400000,"easeFactor":2.6,"interval":1},
		"1_2": {"questionId":2,"chapterId":1,"lastReviewDate":0,"reviewCount":1,"isCorrect":true,"nextReviewDate":0,"easeFactor":0.9,"interval":0},
		"1_3": {"questionId":9,"chapterId":1,"lastReviewDate":0,"reviewCount":1,"isCorrect":true,"nextReviewDate":0,"easeFactor":2.5,"interval":0}
	}`
	require.NoError(t, backend.Put(ctx, DefaultSnapshotKey, []byte(payload)))

	snap := NewStore(ctx, backend).Snapshot()
	require.Len(t, snap, 1)
	assert.Contains(t, snap, domain.NewReviewKey(1, 1))
}

func TestRecordReviewRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: storage.NewMemory()}
	store := NewStore(ctx, backend)

	first, err := store.RecordReview(ctx, 1, 1, true, baseTime)
	require.NoError(t, err)

	backend.putErr = errors.New("write refused")

	_, err = store.RecordReview(ctx, 1, 1, true, baseTime.Add(time.Hour))
	require.Error(t, err)
	stored, ok := store.Get(1, 1)
	require.True(t, ok)
	assert.Equal(t, first, stored, "existing record restored")

	_, err = store.RecordReview(ctx, 2, 1, true, baseTime)
	require.Error(t, err)
	_, ok = store.Get(1, 2)
	assert.False(t, ok, "new record discarded")

	backend.putErr = nil
	assert.Equal(t, store.Snapshot(), NewStore(ctx, backend).Snapshot())
}

func TestConcurrentRecordReviewLosesNothing(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := NewStore(ctx, backend)

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := store.RecordReview(ctx, i%3, 1, w%2 == 0, baseTime)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, rec := range NewStore(ctx, backend).Snapshot() {
		total += rec.ReviewCount
	}
	assert.Equal(t, workers*perWorker, total)
}

func TestSaveReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := NewStore(ctx, backend)

	_, err := store.RecordReview(ctx, 1, 1, true, baseTime)
	require.NoError(t, err)

	key := domain.NewReviewKey(5, 9)
	replacement := domain.Snapshot{key: domain.NewReviewRecord(key)}
	require.NoError(t, store.Save(ctx, replacement))

	assert.Equal(t, replacement, store.Snapshot())
	assert.Equal(t, replacement, NewStore(ctx, backend).Snapshot())
}

func TestSaveRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	key := domain.NewReviewKey(1, 1)

	lowEase := domain.NewReviewRecord(key)
	lowEase.EaseFactor = 0.5
	lowEase.ReviewCount = 3

	testCases := []struct {
		name string
		snap domain.Snapshot
	}{
		{"ease below floor", domain.Snapshot{key: lowEase}},
		{"wrong key", domain.Snapshot{domain.NewReviewKey(1, 2): domain.NewReviewRecord(key)}},
		{"negative count", domain.Snapshot{key: {QuestionID: 1, ChapterID: 1, ReviewCount: -1, EaseFactor: 2.5}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			backend := storage.NewMemory()
			store := NewStore(ctx, backend)
			existing, err := store.RecordReview(ctx, 9, 9, true, baseTime)
			require.NoError(t, err)

			require.Error(t, store.Save(ctx, tc.snap))

			want := domain.Snapshot{existing.Key(): existing}
			assert.Equal(t, want, store.Snapshot(), "in-memory state untouched")
			assert.Equal(t, want, NewStore(ctx, backend).Snapshot(), "persisted state untouched")
		})
	}
}

func TestLongCorrectStreakSurvivesReload(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := NewStore(ctx, backend)

	var rec domain.ReviewRecord
	for i := 0; i < 40; i++ {
		var err error
		rec, err = store.RecordReview(ctx, 1, 1, true, baseTime)
		require.NoError(t, err)
		require.Equal(t, rec.LastReviewDate+int64(rec.Interval)*sm2.DayMillis, rec.NextReviewDate, "answer %d", i+1)
		require.Greater(t, rec.NextReviewDate, rec.LastReviewDate, "answer %d", i+1)
	}
	assert.False(t, rec.IsDue(baseTime))

	reloaded, ok := NewStore(ctx, backend).Get(1, 1)
	require.True(t, ok, "record kept after reload")
	assert.Equal(t, rec, reloaded)
	assert.Equal(t, 40, reloaded.ReviewCount)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := NewStore(ctx, backend)

	_, err := store.RecordReview(ctx, 1, 1, true, baseTime)
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	assert.Empty(t, store.Snapshot())
	_, err = backend.Get(ctx, DefaultSnapshotKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	reader := NewStore(ctx, backend)
	writer := NewStore(ctx, backend)

	_, err := writer.RecordReview(ctx, 3, 3, true, baseTime)
	require.NoError(t, err)
	assert.Empty(t, reader.Snapshot())

	reader.Reload(ctx)
	assert.Len(t, reader.Snapshot(), 1)
}

func TestCustomParams(t *testing.T) {
	ctx := context.Background()
	params := sm2.DefaultParams()
	params.InitialEaseFactor = 2.0
	store := NewStore(ctx, storage.NewMemory(), WithParams(params))

	rec, err := store.RecordReview(ctx, 1, 1, true, baseTime)
	require.NoError(t, err)
	assert.True(t, math.Abs(rec.EaseFactor-2.1) < 1e-9)
}
