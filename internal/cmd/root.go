package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veritahealth/onboard/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Headless onboarding flow engine",
	Long: `Onboard drives a user through the four-step onboarding sequence,
reconciling completion signals from webhooks, redirects, polling, and
manual confirmation against the server's authoritative progress while
managing the session lifecycle and draft autosave.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/onboard/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("access-token", "", "access token (or ONBOARD_AUTH_ACCESS_TOKEN)")
	rootCmd.PersistentFlags().String("refresh-token", "", "refresh token (or ONBOARD_AUTH_REFRESH_TOKEN)")
	_ = viper.BindPFlag("auth.access_token", rootCmd.PersistentFlags().Lookup("access-token"))
	_ = viper.BindPFlag("auth.refresh_token", rootCmd.PersistentFlags().Lookup("refresh-token"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/onboard")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ONBOARD")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ONBOARD_API_BASE_URL for api.base_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
