// internal/cli/root.go
package agenteval

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/agenteval/internal/appconfig"
	"github.com/mwiater/agenteval/internal/logging"
)

var (
	cfgFile       string
	envFiles      []string
	currentConfig *appconfig.Config
)

var rootCmd = &cobra.Command{
	Use:           "agenteval",
	Short:         "agenteval runs datasets against AI agents and scores the answers",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1) Load config (file or defaults)
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		// 2) Flags the user did not set take the config value, so pflags and
		//    viper agree on the final value.
		if !cmd.Flags().Changed("debug") {
			_ = cmd.Flags().Set("debug", strconv.FormatBool(viper.GetBool("debug")))
		}
		for _, name := range []string{"concurrency", "timeout"} {
			if f := cmd.Flags().Lookup(name); f != nil && !f.Changed {
				_ = cmd.Flags().Set(name, strconv.Itoa(viper.GetInt(name)))
			}
		}

		// 3) Materialize the merged configuration (flags > config > defaults).
		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ConfigPath = viper.ConfigFileUsed()
		if err := cfg.LoadEnv(envFiles...); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		currentConfig = &cfg

		if err := logging.Init(cfg.LogFilePath()); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		logging.SetDebug(cfg.Debug)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersionInfo records build metadata reported by --version.
func SetVersionInfo(version, commit, date string) {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "dotenv", nil, "dotenv files with agent and scoring tokens (default .env)")

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Int("concurrency", 0, "records processed concurrently (default 1)")
	rootCmd.PersistentFlags().Int("timeout", 0, "agent and scoring request timeout in seconds (default 120)")

	// Bind flags to Viper keys (flags override config)
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// ensureConfigLoaded reads the config and sets safe defaults.
func ensureConfigLoaded() error {
	viper.SetDefault("debug", false)
	viper.SetDefault("concurrency", 0)
	viper.SetDefault("timeout", 0)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) && cfgFile == appconfig.DefaultConfigPath {
			// the default path is optional
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// GetConfig returns the loaded application configuration.
func GetConfig() *appconfig.Config {
	if currentConfig == nil {
		return &appconfig.Config{}
	}
	return currentConfig
}

// DebugEnabled reports the merged debug setting.
func DebugEnabled() bool { return viper.GetBool("debug") }
