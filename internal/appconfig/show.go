package appconfig

import (
	"fmt"
	"io"
	"sort"
)

// ShowConfig prints the current configuration summary. Secrets are reported
// as set/unset only.
func ShowConfig(out io.Writer, file string, cfg Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Log File:        %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Timeout:         %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Concurrency:     %d\n", cfg.WorkerCount())
	fmt.Fprintf(out, "  Gateway:         %s\n", cfg.GatewayHost())
	fmt.Fprintf(out, "  Agent Token:     %s\n", secretState(cfg.AgentToken))
	fmt.Fprintf(out, "  Scoring Backend: %s\n", valueOrNone(cfg.ScoringBackend))
	fmt.Fprintf(out, "  Scoring Token:   %s\n", secretState(cfg.ScoringToken))
	fmt.Fprintf(out, "  Review Queue:    %s\n", cfg.ReviewQueuePath())
	fmt.Fprintf(out, "  Catalog:         %s\n", cfg.CatalogPath())
	fmt.Fprintf(out, "  Metrics File:    %s\n", cfg.MetricsPath())
	fmt.Fprintf(out, "  Store Backend:   %s\n", cfg.StoreBackend())
	if cfg.StoreBackend() == StoreBackendMySQL {
		fmt.Fprintf(out, "  Store DSN:       %s\n", secretState(cfg.Store.DSN))
	} else {
		fmt.Fprintf(out, "  Store Dir:       %s\n", cfg.StoreDir())
	}

	if len(cfg.CustomServices) > 0 {
		fmt.Fprintln(out, "  Custom Services:")
		targets := make([]string, 0, len(cfg.CustomServices))
		for target := range cfg.CustomServices {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			fmt.Fprintf(out, "    %s -> %s\n", target, cfg.CustomServices[target])
		}
	}
}

func secretState(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

func valueOrNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
