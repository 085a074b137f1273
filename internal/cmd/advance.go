package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veritahealth/onboard/internal/api"
	"github.com/veritahealth/onboard/internal/config"
	"github.com/veritahealth/onboard/internal/logging"
	"github.com/veritahealth/onboard/internal/progress"
	"github.com/veritahealth/onboard/internal/signal"
)

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Manually confirm the current step",
	Long: `Send a manual completion confirmation for the current step. The
coordinator reconciles it against the authoritative progress, so a step
another signal already resolved is a no-op.`,
	RunE: runAdvance,
}

func init() {
	rootCmd.AddCommand(advanceCmd)
}

func runAdvance(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	accessToken := viper.GetString("auth.access_token")
	if accessToken == "" {
		return fmt.Errorf("access token is required")
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout(),
		func() string { return accessToken }, logging.NopLogger())
	defer func() { _ = client.Close() }()

	ctx := cmd.Context()
	store := progress.NewStateStore(client)
	snap, err := store.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch progress: %w", err)
	}

	// No validation gate here: the debug path confirms external-system
	// completion, which the gated steps would block on draft state the
	// CLI does not hold.
	coord := progress.NewCoordinator(client, store, nil, cfg.Progress,
		logging.NopLogger(), progress.Callbacks{})

	outcome, err := coord.Handle(ctx, signal.NewManual(snap.CurrentStep+1))
	if err != nil {
		return fmt.Errorf("advance failed: %w", err)
	}

	fmt.Printf("outcome: %s (step %d)\n", outcome, coord.Store().Get().CurrentStep)
	return nil
}
