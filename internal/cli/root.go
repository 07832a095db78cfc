package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/webcompat/webcompat-search/internal/cloud/gcp"
	"github.com/webcompat/webcompat-search/internal/config"
	"github.com/webcompat/webcompat-search/internal/logging"
	"github.com/webcompat/webcompat-search/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "webcompat-search",
	Short: "Index webcompat issues and build the compatibility dashboard",
	Long: `webcompat-search copies the webcompat issue tracker into Elasticsearch,
enriching every issue with the domains it mentions, and rebuilds the
dashboard reports from the index and Bugzilla.

Example:
  webcompat-search fetch-issues --state open
  webcompat-search reindex-dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .webcompat-search.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "", "log output format (console, json)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".webcompat-search")
	}

	viper.SetEnvPrefix("WEBCOMPAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := config.BindEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Error binding environment:", err)
		os.Exit(1)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		os.Exit(1)
	}
}

// setup loads and checks the configuration, installs the logger and fills
// secret-backed settings. validate is one of the Config validators.
func setup(ctx context.Context, validate func(*config.Config) error) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	if viper.GetBool("verbose") {
		cfg.Log.Level = "debug"
	}
	if err := validate(cfg); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.Init(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if err := resolveSecrets(ctx, cfg, logger); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func resolveSecrets(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	refs := cfg.SecretRefs()
	if !gcp.Pending(refs) {
		return nil
	}

	client, err := gcp.NewSecretManager(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := gcp.Resolve(ctx, client, refs); err != nil {
		return err
	}
	logger.Debug().Msg("Resolved secrets from Secret Manager")
	return nil
}
