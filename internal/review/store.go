// Package review owns the persisted review records and the single path that
// mutates them.
package review

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/conorfennell/mcqreview/internal/domain"
	"github.com/conorfennell/mcqreview/internal/logger"
	"github.com/conorfennell/mcqreview/internal/sm2"
	"github.com/conorfennell/mcqreview/internal/storage"
)

// DefaultSnapshotKey is the identifier the snapshot is persisted under.
const DefaultSnapshotKey = "science_mcq_spaced_repetition"

// Store holds every review record in memory and persists the whole
// collection after each change. It is safe for concurrent use; calls that
// mutate are serialized.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
	key     string
	params  *sm2.Params
	log     *zap.SugaredLogger
	records domain.Snapshot
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshotKey overrides DefaultSnapshotKey.
func WithSnapshotKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithParams overrides the scheduler constants.
func WithParams(p *sm2.Params) Option {
	return func(s *Store) { s.params = p }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates a Store over backend and loads the persisted snapshot.
func NewStore(ctx context.Context, backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultSnapshotKey,
		params:  sm2.DefaultParams(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.records = s.Load(ctx)
	return s
}

// Load reads the persisted snapshot. A missing, empty or unparseable
// snapshot yields an empty mapping; the cause is logged, never returned.
// Individual records that fail validation are dropped.
func (s *Store) Load(ctx context.Context) domain.Snapshot {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Infow("no review snapshot found, starting fresh", "key", s.key)
		} else {
			s.log.Warnw("failed to read review snapshot, starting fresh", "key", s.key, "error", err)
		}
		return domain.Snapshot{}
	}
	if len(data) == 0 {
		s.log.Warnw("review snapshot is empty, starting fresh", "key", s.key)
		return domain.Snapshot{}
	}

	var decoded domain.Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		s.log.Warnw("review snapshot is corrupt, starting fresh", "key", s.key, "error", err)
		return domain.Snapshot{}
	}

	records := make(domain.Snapshot, len(decoded))
	for key, record := range decoded {
		if err := checkRecord(key, record); err != nil {
			s.log.Warnw("dropping invalid review record", "key", key.String(), "error", err)
			continue
		}
		records[key] = record
	}
	s.log.Debugw("review snapshot loaded", "key", s.key, "records", len(records))
	return records
}

// Save replaces the persisted snapshot with snap and makes it the store's
// current state. A snapshot holding any invalid record is rejected whole.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	for key, record := range snap {
		if err := checkRecord(key, record); err != nil {
			return errors.Wrap(err, "refusing to save review snapshot")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap = snap.Clone()
	if err := s.persist(ctx, snap); err != nil {
		return err
	}
	s.records = snap
	return nil
}

// Reload discards the in-memory state and loads the persisted snapshot again.
func (s *Store) Reload(ctx context.Context) {
	records := s.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

// RecordReview applies one answer to the question's record, creating the
// record on first use, persists the whole snapshot and returns the updated
// record. If persisting fails the in-memory state is left unchanged.
func (s *Store) RecordReview(ctx context.Context, questionID, chapterID int, isCorrect bool, now time.Time) (domain.ReviewRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.NewReviewKey(chapterID, questionID)
	previous, existed := s.records[key]
	current := previous
	if !existed {
		current = domain.NewReviewRecord(key)
		current.EaseFactor = s.params.InitialEaseFactor
	}

	next := s.params.Next(sm2.State{EaseFactor: current.EaseFactor, Interval: current.Interval}, isCorrect, now)

	updated := current
	updated.LastReviewDate = now.UnixMilli()
	updated.ReviewCount = current.ReviewCount + 1
	updated.IsCorrect = isCorrect
	updated.NextReviewDate = next.NextReview.UnixMilli()
	updated.EaseFactor = next.EaseFactor
	updated.Interval = next.Interval

	s.records[key] = updated
	if err := s.persist(ctx, s.records); err != nil {
		if existed {
			s.records[key] = previous
		} else {
			delete(s.records, key)
		}
		return domain.ReviewRecord{}, errors.Wrapf(err, "failed to record review for %s", key)
	}

	s.log.Debugw("review recorded",
		"key", key.String(),
		"correct", isCorrect,
		"interval", updated.Interval,
		"ease_factor", updated.EaseFactor,
		"review_count", updated.ReviewCount,
	)
	return updated, nil
}

// Get returns the record for a question, if one exists.
func (s *Store) Get(chapterID, questionID int) (domain.ReviewRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[domain.NewReviewKey(chapterID, questionID)]
	return r, ok
}

// Snapshot returns a copy of every record.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Clone()
}

// Clear deletes the persisted snapshot and every in-memory record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, s.key); err != nil {
		return errors.Wrap(err, "failed to clear review snapshot")
	}
	s.records = domain.Snapshot{}
	s.log.Infow("review snapshot cleared", "key", s.key)
	return nil
}

// checkRecord reports whether record may be stored under key.
func checkRecord(key domain.ReviewKey, record domain.ReviewRecord) error {
	if record.Key() != key {
		return errors.Errorf("review record %s stored under key %s", record.Key(), key)
	}
	return record.Validate()
}

func (s *Store) persist(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to encode review snapshot")
	}
	if err := s.backend.Put(ctx, s.key, data); err != nil {
		return errors.Wrap(err, "failed to save review snapshot")
	}
	return nil
}
