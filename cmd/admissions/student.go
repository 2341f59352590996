package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/admissions-hub/admissions-core/internal/application/command"
	"github.com/admissions-hub/admissions-core/internal/application/query"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// withApp builds an app for one read or profile command and prints its
// result as JSON.
func withApp(cmd *cobra.Command, global *globalOptions, fn func(ctx context.Context, a *app) (any, error)) error {
	a, err := newApp(cmd.Context(), global, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := fn(cmd.Context(), a)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY
// ══════════════════════════════════════════════════════════════════════════════

func eligibilityCmd(global *globalOptions) *cobra.Command {
	var c command.AssessEligibilityCommand
	var studentID string

	cmd := &cobra.Command{
		Use:   "eligibility",
		Short: "Assess exam results and record them on the applicant profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.StudentID = shared.StudentID(studentID)
			return withApp(cmd, global, func(ctx context.Context, a *app) (any, error) {
				return command.NewAssessEligibilityHandler(a.stores.profiles, a.log).Handle(ctx, c)
			})
		},
	}

	cmd.Flags().StringVar(&studentID, "student", "", "Student ID")
	cmd.Flags().StringVar(&c.ExamBoard, "board", "zimsec", "Exam board (zimsec, hexco, cambridge)")
	cmd.Flags().IntVar(&c.Subjects, "subjects", 0, "Passed O-level subjects")
	cmd.Flags().IntVar(&c.Points, "points", 0, "A-level points")
	_ = cmd.MarkFlagRequired("student")

	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATIONS AND AUDIT TRAIL
// ══════════════════════════════════════════════════════════════════════════════

func applicationsCmd(global *globalOptions) *cobra.Command {
	var q query.ListApplicationsQuery
	var studentID string

	cmd := &cobra.Command{
		Use:   "applications",
		Short: "List a student's applications with their allowed next statuses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q.StudentID = shared.StudentID(studentID)
			return withApp(cmd, global, func(ctx context.Context, a *app) (any, error) {
				return a.applications().ListByStudent(ctx, q)
			})
		},
	}

	cmd.Flags().StringVar(&studentID, "student", "", "Student ID")
	cmd.Flags().StringVar(&q.Status, "status", "", "Only applications in this status")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Page size (max 100)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "Rows to skip")
	_ = cmd.MarkFlagRequired("student")

	return cmd
}

func auditCmd(global *globalOptions) *cobra.Command {
	var applicationID, actor string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail of an application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, global, func(ctx context.Context, a *app) (any, error) {
				return a.applications().AuditTrail(ctx, shared.ApplicationID(applicationID), reviewer(actor), limit)
			})
		},
	}

	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID")
	cmd.Flags().StringVar(&actor, "actor", "registrar", "Reviewer identity")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries")
	_ = cmd.MarkFlagRequired("application")

	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// DEADLINES
// ══════════════════════════════════════════════════════════════════════════════

func deadlinesCmd(global *globalOptions) *cobra.Command {
	var institutionID string

	cmd := &cobra.Command{
		Use:   "deadlines",
		Short: "List upcoming application deadlines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, global, func(ctx context.Context, a *app) (any, error) {
				return query.NewDeadlineHandler(a.stores.catalog, time.Now).Upcoming(ctx, institutionID)
			})
		},
	}

	cmd.Flags().StringVar(&institutionID, "institution", "", "Only this institution (default: all)")

	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// INBOX
// ══════════════════════════════════════════════════════════════════════════════

type inboxOptions struct {
	user     string
	limit    int
	markRead bool
}

func inboxCmd(global *globalOptions) *cobra.Command {
	opts := &inboxOptions{}

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show a user's notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), global, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			return runInbox(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.user, "user", "", "Recipient ID")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum notifications")
	cmd.Flags().BoolVar(&opts.markRead, "mark-read", false, "Mark every notification read after listing")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runInbox(ctx context.Context, a *app, opts *inboxOptions, out io.Writer) error {
	user := notification.RecipientID(opts.user)

	inbox, err := query.NewNotificationHandler(a.stores.notifications).Inbox(ctx, user, opts.limit)
	if err != nil {
		return err
	}
	if err := printJSON(out, inbox); err != nil {
		return err
	}

	if opts.markRead && inbox.UnreadCount > 0 {
		n, err := command.NewMarkNotificationsHandler(a.stores.notifications).Handle(ctx, command.MarkNotificationsCommand{UserID: user})
		if err != nil {
			return err
		}
		a.log.Info("notifications marked read",
			logger.String("recipient", opts.user),
			logger.Int("count", n),
		)
	}
	return nil
}
