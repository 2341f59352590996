package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/admissions-hub/admissions-core/internal/application/query"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

type recommendOptions struct {
	applicationID string
	studentID     string
	keyword       string
	limit         int
}

func recommendCmd(global *globalOptions) *cobra.Command {
	opts := &recommendOptions{}

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Score programs for an application or a student",
		Long: `recommend prints admission likelihoods as JSON.

  --application ID          the applied program plus same-faculty alternatives
  --student ID              the whole catalog ranked for the student
  --student ID --keyword K  programs matching an interest keyword`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.applicationID == "") == (opts.studentID == "") {
				return errors.New("exactly one of --application or --student is required")
			}
			a, err := newApp(cmd.Context(), global, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			return runRecommend(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.applicationID, "application", "", "Application ID")
	cmd.Flags().StringVar(&opts.studentID, "student", "", "Student ID")
	cmd.Flags().StringVar(&opts.keyword, "keyword", "", "Interest keyword (with --student)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum programs for catalog ranking (default from SCORING_CATALOG_LIMIT)")

	return cmd
}

func runRecommend(ctx context.Context, a *app, opts *recommendOptions, out io.Writer) error {
	switch {
	case opts.applicationID != "":
		res, err := a.recommends.ForApplication(ctx, query.ApplicationRecommendationsQuery{
			ApplicationID: shared.ApplicationID(opts.applicationID),
			Viewer:        application.Actor{ID: "cli", Name: "cli", CanReviewStatus: true},
		})
		if err != nil {
			return err
		}
		return printJSON(out, res)

	case opts.keyword != "":
		res, err := a.recommends.ForInterest(ctx, query.InterestRecommendationsQuery{
			StudentID: shared.StudentID(opts.studentID),
			Keyword:   opts.keyword,
		})
		if err != nil {
			return err
		}
		return printJSON(out, res)

	default:
		res, err := a.recommends.ForCatalog(ctx, query.CatalogRecommendationsQuery{
			StudentID: shared.StudentID(opts.studentID),
			Limit:     opts.limit,
		})
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}
}
