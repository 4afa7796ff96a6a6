package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/mcqreview/internal/web"
)

func newRecordCmd() *cobra.Command {
	var chapter, question int
	var correct bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the outcome of one answered question",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			rec, err := a.store.RecordReview(cmd.Context(), question, chapter, correct, time.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}),
	}
	cmd.Flags().IntVar(&chapter, "chapter", 0, "Chapter id")
	cmd.Flags().IntVar(&question, "question", 0, "Question id")
	cmd.Flags().BoolVar(&correct, "correct", false, "Whether the answer was correct")
	_ = cmd.MarkFlagRequired("chapter")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func newDueCmd() *cobra.Command {
	var chapter int

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List the chapter's questions that are due for review",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			ids := a.queries.DueQuestions(chapter, time.Now())
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintf(out, "No questions due in chapter %d.\n", chapter)
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&chapter, "chapter", 0, "Chapter id")
	_ = cmd.MarkFlagRequired("chapter")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var chapter int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show review statistics for a chapter",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			st := a.queries.Stats(chapter, time.Now())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Chapter %d\n", chapter)
			fmt.Fprintf(out, "Total reviews: %d\n", st.TotalReviews)
			fmt.Fprintf(out, "Accuracy: %.1f%%\n", st.Accuracy)
			fmt.Fprintf(out, "For review: %d\n", st.QuestionsForReview)
			return nil
		}),
	}
	cmd.Flags().IntVar(&chapter, "chapter", 0, "Chapter id")
	_ = cmd.MarkFlagRequired("chapter")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show review statistics for every chapter",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			sums := a.queries.Summaries(time.Now())
			out := cmd.OutOrStdout()
			if len(sums) == 0 {
				fmt.Fprintln(out, "No reviews recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-8s %8s %9s %10s\n", "CHAPTER", "REVIEWS", "ACCURACY", "FOR REVIEW")
			for _, s := range sums {
				fmt.Fprintf(out, "%-8d %8d %8.1f%% %10d\n", s.ChapterID, s.TotalReviews, s.Accuracy, s.QuestionsForReview)
			}
			return nil
		}),
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every review record",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			if err := a.store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Review history cleared.")
			return nil
		}),
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the review API over HTTP",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		}),
	}
}

func serve(ctx context.Context, a *app) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           web.NewServer(a.store, a.queries, web.WithLogger(a.log)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Infow("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Infow("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
