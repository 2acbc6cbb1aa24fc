package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/cli/formatter"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/wizard"
)

var errNoSession = fmt.Errorf("%w: run `santelle session start` first", cache.ErrNoSession)

func newSessionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and drive the current test",
	}

	cmd.AddCommand(
		newSessionStatusCmd(app),
		newSessionStartCmd(app),
		newSessionStepCmd(app),
		newSessionRecordCmd(app),
		newSessionCompleteCmd(app),
		newSessionAbortCmd(app),
	)

	return cmd
}

func newSessionStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the test in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			res := app.Cache.HydrateFromServer(cmd.Context())
			if !res.OK() {
				if app.Cache.Session() == nil {
					return res.Err
				}
				fmt.Fprintln(out, formatter.StyleYellow.Render("Store unreachable, showing the last known state."))
			}
			fmt.Fprintln(out, formatter.FormatSession(app.Cache.Session(), app.now()))
			return nil
		},
	}
}

func newSessionStartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a test, or resume the one in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			res := app.Cache.StartSession(cmd.Context())
			if !res.OK() {
				return res.Err
			}
			card := wizard.StepAt(res.Session.CurrentStep)
			fmt.Fprintln(cmd.OutOrStdout(), formatter.FormatSession(res.Session, app.now()))
			fmt.Fprintf(cmd.OutOrStdout(), "\nStep %d: %s\n", card.Number, formatter.Bold(card.Title))
			return nil
		},
	}
}

func newSessionStepCmd(app *App) *cobra.Command {
	var confirm, skipWait bool

	cmd := &cobra.Command{
		Use:   "step <n>",
		Short: "Move the test to step n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("step %q: %w", args[0], domain.ErrInvalidStep)
			}
			ctx := cmd.Context()
			ctrl, err := mountController(ctx, app)
			if err != nil {
				return err
			}
			if confirm {
				ctrl.ConfirmStep3(ctx)
			}
			if skipWait {
				ctrl.SkipResultsTimer(ctx)
			}
			tr := ctrl.GoToStep(ctx, target)
			if err := ctrl.Err(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if tr.Corrected {
				fmt.Fprintln(out, formatter.StyleYellow.Render(fmt.Sprintf("Stayed on step %d: %s.", tr.To, tr.Reason)))
			}
			fmt.Fprint(out, renderStepCard(ctrl))
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm: "+wizard.ConfirmPrompt)
	cmd.Flags().BoolVar(&skipWait, "skip-wait", false, "Skip the remaining results wait")

	return cmd
}

func newSessionRecordCmd(app *App) *cobra.Command {
	var rf *readingFlags

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record readings for the current test",
		Example: "  santelle session record --ph 4.4\n" +
			"  santelle session record --h2o2 - --le + --sna - --beta-g - --nag -",
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := rf.patch()
			if err != nil {
				return err
			}
			if patch.IsEmpty() {
				return errors.New("nothing to record: pass --ph or a reading flag")
			}
			ctx := cmd.Context()
			ctrl, err := mountController(ctx, app)
			if err != nil {
				return err
			}
			if patch.PH != nil {
				if err := ctrl.RecordPH(ctx, *patch.PH); err != nil {
					return err
				}
			}
			for _, b := range domain.QualitativeBiomarkers {
				r := readingOf(patch, b)
				if r == nil {
					continue
				}
				if err := ctrl.RecordReading(ctx, b, *r); err != nil {
					return err
				}
			}
			if err := ctrl.Err(); err != nil {
				return err
			}
			log, err := app.Client.GetLog(ctx, app.Cache.Session().ID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatResults(log))
			return nil
		},
	}

	rf = addReadingFlags(cmd.Flags())
	return cmd
}

func newSessionCompleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "complete",
		Short: "Finalize readings and complete the test",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := mountController(ctx, app)
			if err != nil {
				return err
			}
			id := app.Cache.Session().ID
			if err := ctrl.Finish(ctx); err != nil {
				return err
			}
			if err := ctrl.Err(); err != nil {
				return err
			}
			log, err := app.Client.GetLog(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, formatter.StyleGreen.Render("Test complete."))
			fmt.Fprint(out, formatter.FormatResults(log))
			return nil
		},
	}
}

func newSessionAbortCmd(app *App) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Abandon the test in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := mountController(ctx, app)
			if err != nil {
				return err
			}
			ctrl.Cancel(ctx, reason)
			if err := ctrl.Err(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatter.Dim("Test aborted."))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the test was abandoned")
	return cmd
}

// mountController refreshes the cache from the store and returns a wizard
// controller positioned on the stored step. One-shot commands run without
// notifications.
func mountController(ctx context.Context, app *App) (*wizard.Controller, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if res := app.Cache.HydrateFromServer(ctx); !res.OK() {
		return nil, res.Err
	}
	if app.Cache.Session() == nil {
		return nil, errNoSession
	}
	ctrl := wizard.NewController(app.Cache, nil, app.Clock, wizard.WithLogger(app.logger()))
	ctrl.Mount(ctx)
	if err := ctrl.Err(); err != nil {
		return nil, err
	}
	return ctrl, nil
}

func readingOf(p domain.LogPatch, b domain.Biomarker) *domain.Reading {
	switch b {
	case domain.BiomarkerH2O2:
		return p.H2O2
	case domain.BiomarkerLE:
		return p.LE
	case domain.BiomarkerSNA:
		return p.SNA
	case domain.BiomarkerBetaG:
		return p.BetaG
	case domain.BiomarkerNAG:
		return p.NAG
	}
	return nil
}
