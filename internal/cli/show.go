// internal/cli/show.go
package agenteval

import (
	"errors"
	"fmt"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/agenteval/internal/appconfig"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/metrics"
)

var (
	showVerbose  bool
	showEndpoint struct {
		envFile string
		envName string
	}
)

// showCmd represents the 'show' command group for displaying resources.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying resources",
	Long:  `The 'show' command groups subcommands that display configuration, endpoints and agent metrics.`,
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON config is loaded properly and overridden by flags accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()
		appconfig.ShowConfig(out, viper.ConfigFileUsed(), *cfg)
		if showVerbose {
			redacted := *cfg
			redacted.AgentToken = redact(redacted.AgentToken)
			redacted.ScoringToken = redact(redacted.ScoringToken)
			redacted.Store.DSN = redact(redacted.Store.DSN)
			pp.ColoringEnabled = false
			fmt.Fprintln(out)
			_, _ = pp.Fprintln(out, redacted)
		}
		return nil
	},
}

var showEndpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Show the agent endpoint an environment resolves to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		var env environment.Config
		switch {
		case showEndpoint.envFile != "":
			loaded, err := environment.LoadConfig(showEndpoint.envFile)
			if err != nil {
				return err
			}
			env = loaded
		case showEndpoint.envName != "":
			c, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			def, err := c.Environment(showEndpoint.envName)
			if err != nil {
				return err
			}
			env = def.Config
		default:
			return errors.New("use --env-file or --environment")
		}
		fmt.Fprintln(cmd.OutOrStdout(), environment.EndpointURL(env, cfg.GatewayHost()))
		return nil
	},
}

var showMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show recorded agent latency statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := GetConfig().MetricsPath()
		series, err := metrics.LoadFile(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(series) == 0 {
			fmt.Fprintf(out, "No agent metrics recorded in %s.\n", path)
			return nil
		}
		fmt.Fprintf(out, "%-28s %8s %10s %10s %10s %10s %8s\n", "AGENT", "CALLS", "MEAN ms", "STDDEV", "MIN", "MAX", "ERRORS")
		for _, s := range series {
			st := s.Stats.Stats()
			fmt.Fprintf(out, "%-28s %8d %10.1f %10.1f %10.1f %10.1f %8d\n", s.Name, st.Count, st.Mean, st.StdDev, st.Min, st.Max, s.Failures)
		}
		return nil
	},
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func init() {
	showConfigCmd.Flags().BoolVar(&showVerbose, "verbose", false, "dump the merged configuration struct")
	showEndpointCmd.Flags().StringVar(&showEndpoint.envFile, "env-file", "", "environment config file (YAML or JSON)")
	showEndpointCmd.Flags().StringVar(&showEndpoint.envName, "environment", "", "catalogue environment name or ID")

	showCmd.AddCommand(showConfigCmd, showEndpointCmd, showMetricsCmd)
	rootCmd.AddCommand(showCmd)
}
