package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/admissions-hub/admissions-core/internal/application/lifecycle"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION
// ══════════════════════════════════════════════════════════════════════════════

type transitionOptions struct {
	applicationID string
	status        string
	actor         string
	notes         string
}

func transitionCmd(global *globalOptions) *cobra.Command {
	opts := &transitionOptions{}

	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Move an application to a new status as a reviewer",
		Long: `transition applies one reviewer status change. The move is checked against
the persisted status inside the transaction, audited and announced to the
student.

Valid statuses: ` + statusList(),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), global, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			return runTransition(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.applicationID, "application", "", "Application ID")
	cmd.Flags().StringVar(&opts.status, "status", "", "Target status")
	cmd.Flags().StringVar(&opts.actor, "actor", "registrar", "Reviewer identity recorded in the audit log")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "Notes appended to the admin notes")
	_ = cmd.MarkFlagRequired("application")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

func runTransition(ctx context.Context, a *app, opts *transitionOptions, out io.Writer) error {
	target, ok := application.ParseStatus(opts.status)
	if !ok {
		return fmt.Errorf("%w: %q (valid: %s)", shared.ErrInvalidStatus, opts.status, statusList())
	}

	res, err := a.lifecycle.Transition(ctx, lifecycle.TransitionCommand{
		ApplicationID: shared.ApplicationID(opts.applicationID),
		Target:        target,
		Actor:         reviewer(opts.actor),
		Notes:         opts.notes,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %s -> %s\n", res.Application.ID, res.OldStatus, res.NewStatus)
	return nil
}

func statusList() string {
	all := application.AllStatuses()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEWER ACTIONS
// ══════════════════════════════════════════════════════════════════════════════

func reviewCmd(global *globalOptions) *cobra.Command {
	var applicationID, actor string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Reviewer actions that do not change status",
	}
	cmd.PersistentFlags().StringVar(&applicationID, "application", "", "Application ID")
	cmd.PersistentFlags().StringVar(&actor, "actor", "registrar", "Reviewer identity recorded in the audit log")
	_ = cmd.MarkPersistentFlagRequired("application")

	// withManager runs fn against a fresh app.
	withManager := func(cmd *cobra.Command, fn func(ctx context.Context, m *lifecycle.Manager, id shared.ApplicationID, who application.Actor) error) error {
		a, err := newApp(cmd.Context(), global, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a.lifecycle, shared.ApplicationID(applicationID), reviewer(actor))
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "request-documents <documents>",
			Short: "Ask the student for additional documents",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, id shared.ApplicationID, who application.Actor) error {
					_, err := m.RequestDocuments(ctx, lifecycle.RequestDocumentsCommand{
						ApplicationID: id, Actor: who, Documents: args[0],
					})
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "offer-alternative <program-id>",
			Short: "Suggest another program to the student",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, id shared.ApplicationID, who application.Actor) error {
					_, err := m.OfferAlternative(ctx, lifecycle.OfferAlternativeCommand{
						ApplicationID: id, Actor: who, AlternativeProgramID: shared.ProgramID(args[0]),
					})
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "message <text>",
			Short: "Send the student a message about the application",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, id shared.ApplicationID, who application.Actor) error {
					_, err := m.SendMessage(ctx, lifecycle.SendMessageCommand{
						ApplicationID: id, Actor: who, Text: args[0],
					})
					return err
				})
			},
		},
	)

	return cmd
}
