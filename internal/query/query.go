// Package query provides read-only views over review records.
package query

import (
	"slices"
	"time"

	"github.com/conorfennell/mcqreview/internal/domain"
)

// Snapshotter supplies a point-in-time copy of every review record.
type Snapshotter interface {
	Snapshot() domain.Snapshot
}

// Service answers due-question and statistics queries.
type Service struct {
	source Snapshotter
}

// NewService returns a Service reading from source.
func NewService(source Snapshotter) *Service {
	return &Service{source: source}
}

// DueQuestions returns the ids of the chapter's questions that are due at now.
// The order is unspecified.
func (s *Service) DueQuestions(chapterID int, now time.Time) []int {
	return DueQuestions(s.source.Snapshot(), chapterID, now)
}

// Stats aggregates the chapter's records as of now.
func (s *Service) Stats(chapterID int, now time.Time) domain.Stats {
	return Stats(s.source.Snapshot(), chapterID, now)
}

// Summaries returns the stats of every chapter with at least one record,
// ordered by chapter id.
func (s *Service) Summaries(now time.Time) []domain.ChapterSummary {
	return Summaries(s.source.Snapshot(), now)
}

// DueQuestions returns the ids of questions in chapterID whose next review is at or before now.
func DueQuestions(snap domain.Snapshot, chapterID int, now time.Time) []int {
	due := []int{}
	for _, r := range snap {
		if r.ChapterID == chapterID && r.IsDue(now) {
			due = append(due, r.QuestionID)
		}
	}
	return due
}

// Stats aggregates the records of chapterID.
func Stats(snap domain.Snapshot, chapterID int, now time.Time) domain.Stats {
	var st domain.Stats
	for _, r := range snap {
		if r.ChapterID != chapterID {
			continue
		}
		st.TotalReviews += r.ReviewCount
		// Counts every attempt of a record whose latest answer was correct.
		if r.IsCorrect {
			st.CorrectReviews += r.ReviewCount
		}
		if r.IsDue(now) {
			st.QuestionsForReview++
		}
	}
	if st.TotalReviews > 0 {
		st.Accuracy = float64(st.CorrectReviews) / float64(st.TotalReviews) * 100
	}
	return st
}

// Summaries computes Stats for every chapter present in snap.
func Summaries(snap domain.Snapshot, now time.Time) []domain.ChapterSummary {
	seen := make(map[int]struct{})
	for key := range snap {
		seen[key.ChapterID] = struct{}{}
	}
	chapters := make([]int, 0, len(seen))
	for id := range seen {
		chapters = append(chapters, id)
	}
	slices.Sort(chapters)

	out := make([]domain.ChapterSummary, 0, len(chapters))
	for _, id := range chapters {
		out = append(out, domain.ChapterSummary{ChapterID: id, Stats: Stats(snap, id, now)})
	}
	return out
}
