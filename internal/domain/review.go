package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// DefaultEaseFactor is the ease factor of a question that has never been answered.
const DefaultEaseFactor = 2.5

var validate = validator.New()

// ReviewKey identifies a question within its chapter.
// It is comparable and is used directly as a map key.
type ReviewKey struct {
	ChapterID  int
	QuestionID int
}

// NewReviewKey returns the key for the given chapter and question.
func NewReviewKey(chapterID, questionID int) ReviewKey {
	return ReviewKey{ChapterID: chapterID, QuestionID: questionID}
}

// String renders the key in its persisted form, "{chapterId}_{questionId}".
func (k ReviewKey) String() string {
	return strconv.Itoa(k.ChapterID) + "_" + strconv.Itoa(k.QuestionID)
}

// MarshalText lets a ReviewKey act as a JSON object key.
func (k ReviewKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the persisted "{chapterId}_{questionId}" form.
func (k *ReviewKey) UnmarshalText(text []byte) error {
	parsed, err := ParseReviewKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseReviewKey parses a key of the form "{chapterId}_{questionId}". Only the
// form String produces is accepted, so distinct keys never collide.
func ParseReviewKey(s string) (ReviewKey, error) {
	chapter, question, ok := strings.Cut(s, "_")
	if !ok {
		return ReviewKey{}, errors.Errorf("malformed review key %q", s)
	}
	chapterID, err := strconv.Atoi(chapter)
	if err != nil {
		return ReviewKey{}, errors.Wrapf(err, "malformed chapter in review key %q", s)
	}
	questionID, err := strconv.Atoi(question)
	if err != nil {
		return ReviewKey{}, errors.Wrapf(err, "malformed question in review key %q", s)
	}
	key := ReviewKey{ChapterID: chapterID, QuestionID: questionID}
	if key.String() != s {
		return ReviewKey{}, errors.Errorf("non-canonical review key %q", s)
	}
	return key, nil
}

// ReviewRecord is the scheduling state of one question.
// Timestamps are milliseconds since the Unix epoch.
type ReviewRecord struct {
	QuestionID     int     `json:"questionId"`
	ChapterID      int     `json:"chapterId"`
	LastReviewDate int64   `json:"lastReviewDate" validate:"gte=0"`
	ReviewCount    int     `json:"reviewCount" validate:"gte=0"`
	IsCorrect      bool    `json:"isCorrect"`
	NextReviewDate int64   `json:"nextReviewDate" validate:"gte=0"`
	EaseFactor     float64 `json:"easeFactor" validate:"gte=1.3"`
	Interval       int     `json:"interval" validate:"gte=0"`
}

// NewReviewRecord returns the record of a question that has never been answered.
func NewReviewRecord(key ReviewKey) ReviewRecord {
	return ReviewRecord{
		QuestionID: key.QuestionID,
		ChapterID:  key.ChapterID,
		EaseFactor: DefaultEaseFactor,
	}
}

// Key returns the record's identity.
func (r ReviewRecord) Key() ReviewKey {
	return ReviewKey{ChapterID: r.ChapterID, QuestionID: r.QuestionID}
}

// IsDue reports whether the question is due for review at now.
func (r ReviewRecord) IsDue(now time.Time) bool {
	return r.NextReviewDate <= now.UnixMilli()
}

// LastReviewed returns LastReviewDate as a time.Time.
func (r ReviewRecord) LastReviewed() time.Time {
	return time.UnixMilli(r.LastReviewDate)
}

// NextReview returns NextReviewDate as a time.Time.
func (r ReviewRecord) NextReview() time.Time {
	return time.UnixMilli(r.NextReviewDate)
}

// Validate checks the field constraints of the record.
func (r ReviewRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.Wrapf(err, "invalid review record %s", r.Key())
	}
	return nil
}

// Snapshot is the full collection of review records, keyed by question.
// It encodes to JSON as an object keyed by "{chapterId}_{questionId}".
type Snapshot map[ReviewKey]ReviewRecord

// Clone returns a copy of the snapshot that shares no state with s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
