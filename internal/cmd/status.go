package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veritahealth/onboard/internal/api"
	"github.com/veritahealth/onboard/internal/config"
	"github.com/veritahealth/onboard/internal/logging"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current onboarding status",
	Long:  `Display the authoritative onboarding progress and intake-form state.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	user, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch user: %w", err)
	}

	progress, err := client.Progress(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch progress: %w", err)
	}

	fmt.Printf("User: %s\n", user.Email)
	fmt.Printf("Step: %d/4\n", progress.CurrentStep)
	if len(progress.TasksCompleted) > 0 {
		fmt.Printf("Tasks completed this step: %v\n", progress.TasksCompleted)
	}
	if progress.PBClientRecordID != "" {
		fmt.Printf("Booking record: %s\n", progress.PBClientRecordID)
	}
	if !progress.UpdatedAt.IsZero() {
		fmt.Printf("Updated: %s\n", progress.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	if form, err := client.IntakeForm(ctx); err == nil {
		fmt.Printf("Intake form submitted: %v\n", form.Submitted)
	}

	return nil
}
