package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LehuyH/transfer-helper/internal/export"
	"github.com/LehuyH/transfer-helper/internal/integrations/llm"
	slackbot "github.com/LehuyH/transfer-helper/internal/integrations/slack"
	"github.com/LehuyH/transfer-helper/internal/refresh"
	"github.com/LehuyH/transfer-helper/internal/server"
)

type opener func() (*env, error)

func newServeCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			notifier := slackbot.New(e.cfg, e.logger)
			var sharer server.Sharer
			var notify refresh.Notifier
			if notifier != nil {
				sharer, notify = notifier, notifier
			}
			var reviewer server.Reviewer
			if r, err := llm.New(e.cfg, e.logger); err == nil {
				reviewer = r
			} else {
				e.logger.Info("plan review disabled", zap.Error(err))
			}

			sched, err := refresh.NewScheduler(e.cfg, e.db, e.client, notify, e.logger)
			if err != nil {
				return err
			}

			h := server.NewHandler(e.svc, sharer, reviewer, e.logger)
			router := server.NewRouter(h, e.registry, e.logger)

			g, gctx := errgroup.WithContext(ctx)
			if sched != nil {
				g.Go(func() error {
					sched.Run(gctx)
					return nil
				})
			}
			g.Go(func() error {
				return server.Run(gctx, e.cfg.ListenAddr, router, e.logger)
			})
			return g.Wait()
		},
	}
}

func newCollegesCommand(open opener) *cobra.Command {
	var transfer bool
	cmd := &cobra.Command{
		Use:   "colleges",
		Short: "List community colleges, or transfer schools with --transfer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			dir, err := e.svc.Colleges(cmd.Context())
			if err != nil {
				return err
			}
			return renderDirectory(cmd.OutOrStdout(), dir, transfer)
		},
	}
	cmd.Flags().BoolVar(&transfer, "transfer", false, "list transfer schools and their majors")
	return cmd
}

func newRefreshCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refetch the directory and every major referenced by a stored plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := refresh.RunOnce(cmd.Context(), e.db, e.client, e.logger)
			fmt.Fprintln(cmd.OutOrStdout(), refresh.FormatSummary(result))
			return err
		},
	}
}

func newPlanCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and edit transfer plans",
	}
	cmd.AddCommand(
		planCreateCommand(open),
		planListCommand(open),
		planAddMajorCommand(open),
		planRemoveMajorCommand(open),
		planSelectCommand(open),
		planUnselectCommand(open),
		planToggleCommand(open),
		planShowCommand(open),
		planExportCommand(open),
		planShareCommand(open),
		planReviewCommand(open),
	)
	return cmd
}

func intArg(args []string, i int, name string) (int, error) {
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", name, args[i], err)
	}
	return v, nil
}

func planCreateCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "create <college-id>",
		Short: "Start a plan for a community college",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromID, err := intArg(args, 0, "college id")
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.svc.CreatePlan(cmd.Context(), fromID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created plan %s for %s\n", p.ID, p.FromName)
			return nil
		},
	}
}

func planListCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			plans, err := e.svc.ListPlans()
			if err != nil {
				return err
			}
			return renderPlanList(cmd.OutOrStdout(), plans)
		},
	}
}

func planAddMajorCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "add-major <plan-id> <school-id> <major>",
		Short: "Target a major at a transfer school",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			schoolID, err := intArg(args, 1, "school id")
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.svc.AddMajor(cmd.Context(), args[0], schoolID, args[2]); err != nil {
				return err
			}
			r, err := e.svc.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), r)
		},
	}
}

func planRemoveMajorCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-major <plan-id> <school-id> <major>",
		Short: "Stop targeting a major",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			schoolID, err := intArg(args, 1, "school id")
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			return e.svc.RemoveMajor(args[0], schoolID, args[2])
		},
	}
}

func planSelectCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "select <plan-id> <course-id>",
		Short: "Mark a sending course as planned",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID, err := intArg(args, 1, "course id")
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			r, err := e.svc.SelectByID(cmd.Context(), args[0], courseID)
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), r)
		},
	}
}

func planUnselectCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "unselect <plan-id> <course-id>",
		Short: "Remove a planned sending course",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID, err := intArg(args, 1, "course id")
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			r, err := e.svc.Unselect(cmd.Context(), args[0], courseID)
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), r)
		},
	}
}

func planToggleCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <plan-id> <cell-id> <option>",
		Short: "Select or clear one articulation option of a requirement",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			option, err := intArg(args, 2, "option")
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			selected, r, err := e.svc.ToggleOption(cmd.Context(), args[0], args[1], option)
			if err != nil {
				return err
			}
			state := "cleared"
			if selected {
				state = "selected"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Option %d of %s %s\n\n", option, args[1], state)
			return renderReport(cmd.OutOrStdout(), r)
		},
	}
}

func planShowCommand(open opener) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Evaluate a plan against every targeted major",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			r, err := e.svc.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			return renderReport(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full evaluation as JSON")
	return cmd
}

func planExportCommand(open opener) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <plan-id>",
		Short: "Write the plan's course list as CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "xlsx" {
				return fmt.Errorf("invalid format '%s': must be csv or xlsx", format)
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			r, err := e.svc.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if format == "xlsx" {
				err = export.WriteXLSX(&buf, r)
			} else {
				err = export.WriteCSV(&buf, r)
			}
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				if err := os.MkdirAll(e.cfg.ExportDir, 0o755); err != nil {
					return err
				}
				path = filepath.Join(e.cfg.ExportDir, export.Filename(r, format))
			}
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: export_dir/<generated name>)")
	return cmd
}

func planShareCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "share <plan-id>",
		Short: "Post the plan summary and CSV to the configured Slack channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			notifier := slackbot.New(e.cfg, e.logger)
			if notifier == nil {
				return errors.New("slack_bot_token and slack_channel_id are not configured")
			}
			r, err := e.svc.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := export.WriteCSV(&buf, r); err != nil {
				return err
			}
			if err := notifier.SharePlan(cmd.Context(), r, buf.Bytes(), export.Filename(r, "csv")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Shared plan to Slack.")
			return nil
		},
	}
}

func planReviewCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "review <plan-id>",
		Short: "Ask the configured model for a plain-language review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			reviewer, err := llm.New(e.cfg, e.logger)
			if err != nil {
				return err
			}
			r, err := e.svc.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			review, _, err := reviewer.Review(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), llm.Format(review))
			return nil
		},
	}
}
