// Package main provides solarctl, an operator CLI over the workflow sheet.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/pkg/logger"
	"github.com/AnTengye/solarflow/service"
	"github.com/spf13/cobra"
)

// app is the state shared by every command after the config is loaded
type app struct {
	configPath string
	verbose    bool

	cfg       *config.Config
	catalogue *service.Catalogue
	backends  *service.Backends
	workflow  *service.WorkflowService
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "solarctl",
		Short:         "Inspect and export the solar installation workflow",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(
		a.stagesCmd(),
		a.fetchCmd(),
		a.optionsCmd(),
		a.exportCmd(),
		a.reportCmd(),
		a.validateCmd(),
	)
	return rootCmd
}

func (a *app) setup(ctx context.Context, errOut io.Writer) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	logger.InitWriter(&logger.Config{Level: level, Format: cfg.Log.Format}, errOut)

	if err := service.SetTimezone(cfg.Sheet.Timezone); err != nil {
		return err
	}

	cat, err := service.LoadCatalogue(cfg.StagesFile)
	if err != nil {
		return err
	}
	backends, err := service.NewBackends(ctx, cfg)
	if err != nil {
		return err
	}
	workflow, err := backends.NewWorkflow(cat, service.NewRecordStore(), cfg.Uploads)
	if err != nil {
		return err
	}

	a.cfg, a.catalogue, a.backends, a.workflow = cfg, cat, backends, workflow
	return nil
}

func (a *app) stagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the stage catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTITLE\tSHEET\tTRIGGER\tCOMPLETION\tFIELDS")
			for _, s := range a.workflow.Stages() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
					s.Name, s.Title, s.Sheet, s.TriggerColumn, s.CompletionColumn, len(s.Fields))
			}
			return w.Flush()
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fetch <stage>",
		Short: "Fetch a stage and print its pending and history records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			part, err := a.workflow.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(part)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tROW\tENQUIRY\tCOMPLETED")
			for _, r := range part.Pending {
				fmt.Fprintf(w, "pending\t%d\t%s\t\n", r.RowIndex, r.BusinessKey)
			}
			for _, r := range part.History {
				fmt.Fprintf(w, "history\t%d\t%s\t%s\n", r.RowIndex, r.BusinessKey, r.CompletedAt)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pending, %d history\n", len(part.Pending), len(part.History))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func (a *app) optionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options <name>",
		Short: "Print the values of a dropdown source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := a.workflow.Options(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var outputPath string
	var share bool
	cmd := &cobra.Command{
		Use:   "export <stage>",
		Short: "Export a stage to an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stage, err := a.workflow.Stage(args[0])
			if err != nil {
				return err
			}
			part, err := a.workflow.Load(ctx, stage.Name)
			if err != nil {
				return err
			}
			f, filename, err := service.ExportStage(stage, part)
			if err != nil {
				return err
			}
			defer f.Close()

			if outputPath == "" {
				outputPath = filename
			}
			if err := f.SaveAs(outputPath); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d pending, %d history)\n",
				outputPath, len(part.Pending), len(part.History))

			if !share {
				return nil
			}
			if a.backends.Minio == nil {
				return fmt.Errorf("--share needs minio.endpoint in the config")
			}
			var buf bytes.Buffer
			if err := f.Write(&buf); err != nil {
				return err
			}
			link, err := a.backends.Minio.ShareExport(ctx, filename, buf.Bytes())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default: <stage>_<date>.xlsx)")
	cmd.Flags().BoolVar(&share, "share", false, "Also upload to MinIO and print a download link")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Rank installations by specific yield over the last complete days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var cache service.ReportCache
			if a.cfg.Redis.Addr != "" {
				redisCache := service.NewRedisCache(&a.cfg.Redis)
				defer redisCache.Close()
				cache = redisCache
			}
			reports := service.NewReportService(a.backends.Rows, service.NewMonitorService(&a.cfg.Monitor), cache, &a.cfg.Report)

			report, err := reports.WeeklyYield(ctx)
			if err != nil {
				return err
			}

			if outputPath != "" {
				f, err := service.ExportYield(report)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := f.SaveAs(outputPath); err != nil {
					return fmt.Errorf("failed to write %s: %w", outputPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outputPath)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s - %s\n", report.From, report.To)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tENQUIRY\tCUSTOMER\tKWP\tKWH\tYIELD\tERROR")
			for _, e := range report.Entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
					e.Rank, e.EnquiryNumber, e.Customer, e.CapacityKWp, e.WeeklyKWh, e.SpecificYield, e.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the report to an xlsx file")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the sheet's header rows against the stage catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.workflow.ValidateSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d stages match the sheet\n", len(a.catalogue.Stages))
			return nil
		},
	}
}
