package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/adapter"
	"github.com/quotescope/quotescope/internal/adapter/codeweavers"
	"github.com/quotescope/quotescope/internal/adapter/reqblock"
	"github.com/quotescope/quotescope/internal/adapter/scuk"
	"github.com/quotescope/quotescope/internal/config"
	"github.com/quotescope/quotescope/internal/observability"
	"github.com/quotescope/quotescope/internal/orchestrator"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <url> [dealerId] [carId]",
		Short: "Scrapes one listing page for finance quotations",
		Args:  cobra.RangeArgs(1, 3),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys, so command-line
			// flags correctly override values from the config file and
			// environment variables.
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("sink.dir", cmd.Flags().Lookup("data-dir")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			job := orchestrator.Job{
				URL:     args[0],
				Profile: viper.GetString("profile"),
			}
			if len(args) > 1 {
				job.DealerID = args[1]
			}
			if len(args) > 2 {
				job.CarID = args[2]
			}
			if !strings.HasPrefix(job.URL, "http://") && !strings.HasPrefix(job.URL, "https://") {
				job.URL = "https://" + job.URL
			}

			runID := uuid.New().String()
			logger.Info("Starting new scrape run",
				zap.String("runID", runID),
				zap.String("url", job.URL),
				zap.String("profile", job.Profile))

			orch, err := orchestrator.New(cfg, logger, newAdapterRegistry())
			if err != nil {
				return fmt.Errorf("failed to create orchestrator: %w", err)
			}

			if err := orch.Run(ctx, job); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Scrape aborted gracefully", zap.String("runID", runID))
					return fmt.Errorf("scrape aborted by user signal")
				}
				logger.Error("Scrape failed", zap.Error(err), zap.String("runID", runID))
				return err
			}

			logger.Info("Scrape run finished", zap.String("runID", runID))
			return nil
		},
	}

	runCmd.Flags().StringP("profile", "p", config.ProfileSimple, "Scrape profile to use ('simple', 'fast'). (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	runCmd.Flags().String("data-dir", "", "Directory for result files. (Overrides config/env)")

	return runCmd
}

// newAdapterRegistry wires up every site integration shipped with the binary.
func newAdapterRegistry() *adapter.Registry {
	registry := adapter.NewRegistry()
	registry.Register(codeweavers.PluginName, codeweavers.New)
	registry.Register(scuk.PluginName, scuk.New)
	registry.Register(reqblock.PluginName, reqblock.New)
	return registry
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
