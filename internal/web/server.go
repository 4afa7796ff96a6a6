package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/conorfennell/mcqreview/internal/domain"
	"github.com/conorfennell/mcqreview/internal/logger"
	"github.com/conorfennell/mcqreview/internal/query"
)

// Recorder is the write side the server depends on.
type Recorder interface {
	RecordReview(ctx context.Context, questionID, chapterID int, isCorrect bool, now time.Time) (domain.ReviewRecord, error)
	Clear(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	recorder Recorder
	queries  *query.Service
	router   *http.ServeMux
	log      *zap.SugaredLogger
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates and configures a new server.
func NewServer(recorder Recorder, queries *query.Service, opts ...Option) *Server {
	s := &Server{
		recorder: recorder,
		queries:  queries,
		router:   http.NewServeMux(),
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("POST /reviews", s.handlePostReview())
	s.router.HandleFunc("DELETE /reviews", s.handleClearReviews())
	s.router.HandleFunc("GET /chapters/{id}/due", s.handleGetDue())
	s.router.HandleFunc("GET /chapters/{id}/stats", s.handleGetStats())
	s.router.HandleFunc("GET /summary", s.handleGetSummary())
}

type reviewRequest struct {
	QuestionID *int  `json:"questionId"`
	ChapterID  *int  `json:"chapterId"`
	IsCorrect  *bool `json:"isCorrect"`
}

type dueResponse struct {
	ChapterID   int   `json:"chapterId"`
	QuestionIDs []int `json:"questionIds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handlePostReview records one answered question and returns the updated record.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "request body must hold a single JSON object")
			return
		}
		if req.QuestionID == nil || req.ChapterID == nil || req.IsCorrect == nil {
			s.writeError(w, http.StatusBadRequest, "questionId, chapterId and isCorrect are required")
			return
		}

		rec, err := s.recorder.RecordReview(r.Context(), *req.QuestionID, *req.ChapterID, *req.IsCorrect, s.now())
		if err != nil {
			s.log.Errorw("Error recording review",
				"chapter_id", *req.ChapterID, "question_id", *req.QuestionID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to record review")
			return
		}
		s.writeJSON(w, http.StatusOK, rec)
	}
}

// handleClearReviews deletes every review record.
func (s *Server) handleClearReviews() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.recorder.Clear(r.Context()); err != nil {
			s.log.Errorw("Error clearing reviews", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to clear reviews")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGetDue lists the chapter's questions that are due now.
func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chapterID, ok := s.chapterID(w, r)
		if !ok {
			return
		}
		s.writeJSON(w, http.StatusOK, dueResponse{
			ChapterID:   chapterID,
			QuestionIDs: s.queries.DueQuestions(chapterID, s.now()),
		})
	}
}

// handleGetStats returns the chapter's review statistics.
func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chapterID, ok := s.chapterID(w, r)
		if !ok {
			return
		}
		s.writeJSON(w, http.StatusOK, s.queries.Stats(chapterID, s.now()))
	}
}

// handleGetSummary returns statistics for every chapter with recorded reviews.
func (s *Server) handleGetSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.queries.Summaries(s.now()))
	}
}

func (s *Server) chapterID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid chapter id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("Error writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
