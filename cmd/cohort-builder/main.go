package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/synaptica-ai/registercohort/pkg/bootstrap"
	"github.com/synaptica-ai/registercohort/pkg/common/database"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
)

func main() {
	logger.Init()

	rootCmd := &cobra.Command{
		Use:           "cohort-builder",
		Short:         "Build exposed and matched unexposed cohorts from register tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Pipeline YAML file (overrides PIPELINE_CONFIG)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(codesCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Log.WithError(err).Error("cohort-builder failed")
		os.Exit(1)
	}
}

func components(cmd *cobra.Command) (*bootstrap.Components, error) {
	pipelineFile, _ := cmd.Flags().GetString("config")
	cfg, p, err := bootstrap.LoadConfig(pipelineFile)
	if err != nil {
		return nil, err
	}
	return bootstrap.Load(cmd.Context(), cfg, p)
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate tables, create cohorts and prepare parental income",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			c, err := components(cmd)
			if err != nil {
				return err
			}
			defer database.ClosePostgres()
			defer database.CloseRedis()

			clearCache, _ := cmd.Flags().GetBool("clear-cache")
			policy, _ := cmd.Flags().GetString("match-policy")
			ratio, _ := cmd.Flags().GetInt("match-ratio")

			runID := uuid.New().String()
			result, err := c.Job()(ctx, runID, models.CohortBuildRequest{
				RequestedBy: "cli",
				ClearCache:  clearCache,
				MatchPolicy: policy,
				MatchRatio:  ratio,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().Bool("clear-cache", false, "Remove cached stage results before building")
	cmd.Flags().String("match-policy", "", "Override the match policy (all, without_replacement)")
	cmd.Flags().Int("match-ratio", 0, "Matches per exposed child for without_replacement (0 = unlimited)")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached stage results",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached stage result",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := components(cmd)
			if err != nil {
				return err
			}
			defer database.CloseRedis()

			release, err := c.Memo.Lock(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			if err := c.Memo.Clear(cmd.Context()); err != nil {
				return err
			}
			logger.Log.WithField("backend", c.Config.CacheBackend).Info("cache cleared")
			return nil
		},
	})
	return cmd
}

func codesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "Print the expanded severe chronic code lookup",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelineFile, _ := cmd.Flags().GetString("config")
			cfg, p, err := bootstrap.LoadConfig(pipelineFile)
			if err != nil {
				return err
			}
			lookup, err := bootstrap.LoadLookup(cfg, p)
			if err != nil {
				return err
			}
			for _, code := range lookup.Codes() {
				label, _ := lookup.Label(code)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", code, label)
			}
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
