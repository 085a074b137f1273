package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veritahealth/onboard/internal/config"
	"github.com/veritahealth/onboard/internal/engine"
	"github.com/veritahealth/onboard/internal/event"
	"github.com/veritahealth/onboard/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the onboarding engine",
	Long: `Start the engine against the configured API: restore the draft,
fetch the authoritative progress, monitor session expiry, and poll for
step completion until interrupted.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	accessToken := viper.GetString("auth.access_token")
	refreshToken := viper.GetString("auth.refresh_token")
	if accessToken == "" || refreshToken == "" {
		return fmt.Errorf("access and refresh tokens are required")
	}

	eng := engine.New(cfg, log, nil)
	defer func() { _ = eng.Close() }()

	if err := eng.Login(accessToken, refreshToken); err != nil {
		return fmt.Errorf("failed to install tokens: %w", err)
	}

	// Mirror engine events to stdout so the run is observable.
	eng.Bus().SubscribeAll(func(ev event.Event) {
		switch e := ev.(type) {
		case event.StepAdvancedEvent:
			fmt.Printf("step advanced: %d -> %d (%s)\n", e.FromStep, e.ToStep, e.Source)
		case event.StepRolledBackEvent:
			fmt.Printf("step rolled back: %d -> %d\n", e.FromStep, e.ToStep)
		case event.ValidationRejectedEvent:
			fmt.Printf("validation rejected at step %d: %v\n", e.Step, e.FieldIDs)
		case event.SessionWarningEvent:
			fmt.Printf("session expiring in %ds\n", e.RemainingSeconds)
		case event.SessionEndedEvent:
			fmt.Printf("session ended: %s\n", e.Reason)
		case event.DraftSavedEvent:
			fmt.Printf("draft saved to %s tier\n", e.Tier)
		case event.StorageDegradedEvent:
			fmt.Printf("storage degraded: %s -> %s\n", e.FailedTier, e.FallbackTier)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	snap := eng.Progress()
	fmt.Printf("onboarding at step %d/%d\n", snap.CurrentStep, 4)

	<-ctx.Done()
	fmt.Println("shutting down")
	return nil
}
