package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/crisis"
	crisisconfig "github.com/lifeline-care/crisis/internal/crisis/config"
	"github.com/lifeline-care/crisis/internal/shared/logging"
)

// rootCmd is the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crisisctl",
	Short: "Inspect the crisis detection engine",
	Long: `crisisctl scores text, lists crisis resources and shows the resolved
keyword configuration without starting the service. Nothing is persisted.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("override-file", "", "YAML crisis config overlay (or set CRISIS_OVERRIDE_FILE)")
	rootCmd.PersistentFlags().String("api-base-url", "", "remote config base URL (or set CRISIS_API_BASE_URL)")
	rootCmd.PersistentFlags().String("country", "", "country code for resource catalogs (or set CRISIS_DEFAULT_COUNTRY)")
	rootCmd.PersistentFlags().Duration("remote-timeout", 0, "remote config fetch timeout")
	rootCmd.PersistentFlags().Bool("debug", false, "log engine diagnostics to stderr")

	viper.BindPFlag("override_file", rootCmd.PersistentFlags().Lookup("override-file"))
	viper.BindPFlag("api_base_url", rootCmd.PersistentFlags().Lookup("api-base-url"))
	viper.BindPFlag("default_country", rootCmd.PersistentFlags().Lookup("country"))
	viper.BindPFlag("remote_timeout", rootCmd.PersistentFlags().Lookup("remote-timeout"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	viper.SetDefault("default_country", "US")
	viper.SetDefault("remote_timeout", "5s")

	rootCmd.AddCommand(newAnalyzeCmd(), newResourcesCmd(), newConfigCmd())
}

// initConfig reads CRISIS_* environment variables.
func initConfig() {
	viper.SetEnvPrefix("crisis")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func newLogger() *zap.Logger {
	if !viper.GetBool("debug") {
		return zap.NewNop()
	}
	logger, err := logging.New("development", "debug")
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadConfigs builds the config store and applies the file and remote overlays.
// Invalid overlays are reported and the last valid config is kept.
func loadConfigs(ctx context.Context, stderr io.Writer) *crisisconfig.Store {
	logger := newLogger()
	store := crisisconfig.NewStore(
		crisisconfig.WithOverrideFile(viper.GetString("override_file")),
		crisisconfig.WithRemote(crisisconfig.NewRemoteLoader(
			viper.GetString("api_base_url"),
			viper.GetDuration("remote_timeout"),
			logger,
		)),
		crisisconfig.WithLogger(logger),
	)
	if err := store.Reload(ctx); err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}
	return store
}

func newService(ctx context.Context, stderr io.Writer) *crisis.Service {
	return crisis.NewService(crisis.Deps{
		Configs:        loadConfigs(ctx, stderr),
		DefaultCountry: viper.GetString("default_country"),
		Logger:         newLogger(),
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
