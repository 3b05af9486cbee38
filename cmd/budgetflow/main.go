package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"budgetflow/internal/cli"
	"budgetflow/internal/config"
	"budgetflow/internal/log"
	"budgetflow/internal/services"
	"budgetflow/internal/storage"
)

var (
	cfgFile   string
	noHistory bool
)

var rootCmd = &cobra.Command{
	Use:           "budgetflow",
	Short:         "Allocate funding source budgets into monthly account matrices",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Run the allocation engine over the secured budgets and write the matrices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, app *app) error {
			res, err := app.svc.Allocation.Allocate(ctx, app.info())
			if res != nil && res.Report != nil {
				printAllocation(cmd.OutOrStdout(), res)
			}
			return err
		})
	},
}

var varianceCmd = &cobra.Command{
	Use:   "variance",
	Short: "Write reconciled actuals and forecast formulas into every secured budget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, app *app) error {
			results, err := app.svc.Variance.ReconcileAll(ctx, app.info())
			printVariance(cmd.OutOrStdout(), results)
			return err
		})
	},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Rebuild the funding overview sheet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, app *app) error {
			t, err := app.svc.Overview.Build(ctx, app.info())
			if err != nil {
				return err
			}
			printOverview(cmd.OutOrStdout(), t)
			return nil
		})
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts <funding_source>",
	Short: "Refresh the account list and validation of one budget workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, app *app) error {
			ref, err := app.svc.Accounts.FindSource(ctx, args[0])
			if err != nil {
				return err
			}
			if err := app.svc.Accounts.Refresh(ctx, ref, app.info()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accounts refreshed for %s\n", ref.Name)
			return nil
		})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs from the run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		defer repo.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := repo.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

// app is what a pipeline command needs.
type app struct {
	svc         *cli.Services
	requestedBy string
}

func (a *app) info() services.RunInfo {
	return services.RunInfo{RequestedBy: a.requestedBy}
}

// withServices loads the configuration, builds the services and runs fn
// with a context cancelled on SIGINT or SIGTERM.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, app *app) error) error {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg, log.ComponentCLI)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runs services.RunRecorder
	if !noHistory {
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		defer repo.Close()
		runs = repo
	}

	svc, err := cli.BuildServices(ctx, cfg, runs, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(ctx, &app{svc: svc, requestedBy: requestedBy()})
}

func requestedBy() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the run history")

	// Configuration overrides, bound to the matching keys
	pf := rootCmd.PersistentFlags()
	pf.String(config.FlagName("DATA_BACKEND"), "", "Data backend: memory, files or sheets")
	pf.String(config.FlagName("DATA_DIR"), "", "Root of the files backend")
	pf.String(config.FlagName("OUTPUT_DIR"), "", "Output directory of the files backend")
	pf.String(config.FlagName("PROJECT_FOLDER_ID"), "", "Drive folder holding secured and proposed")
	pf.String(config.FlagName("OUTPUT_SPREADSHEET_ID"), "", "Spreadsheet receiving the matrices")
	pf.String(config.FlagName("CATALOG_SPREADSHEET_ID"), "", "Chart of accounts spreadsheet")
	pf.String(config.FlagName("RECONCILIATION_FOLDER_ID"), "", "Folder holding reconciliation workbooks")
	pf.String(config.FlagName("SETTINGS_FILE"), "", "YAML engine settings")
	pf.String(config.FlagName("SQLITE_DB_PATH"), "", "Run history database")
	pf.String(config.FlagName("EXPORT_BUCKET"), "", "Bucket receiving report CSVs")
	pf.Int(config.FlagName("ENGINE_WORKERS"), 0, "Funding sources processed concurrently")
	pf.String(config.FlagName("LOG_LEVEL"), "", "debug, info, warn or error")
	pf.String(config.FlagName("LOG_FORMAT"), "", "text, json or terminal")

	runsCmd.Flags().Int("limit", 20, "Number of runs to list")

	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(varianceCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
