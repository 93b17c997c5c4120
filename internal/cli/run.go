// internal/cli/run.go
package agenteval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/agenteval/internal/appconfig"
	"github.com/mwiater/agenteval/internal/catalog"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/logging"
	"github.com/mwiater/agenteval/internal/metrics"
	"github.com/mwiater/agenteval/internal/pipeline"
	"github.com/mwiater/agenteval/internal/report"
	"github.com/mwiater/agenteval/internal/runs"
	"github.com/mwiater/agenteval/internal/tui"
)

// runOptions collects the flags of 'agenteval run'.
type runOptions struct {
	name        string
	envFile     string
	envName     string
	datasetPath string
	datasetName string
	suitePath   string
	suiteName   string
	evaluators  []string
	tui         bool
	maxRows     int
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a dataset against an agent and score the answers",
	Long: `Run sends every dataset record to the agent, scores each answer with the
evaluator suite and stores the run. The environment, dataset and evaluators
come either from files or from the catalogue.`,
	Example: `  agenteval run --env-file envs/finance.yaml --dataset data/qa.json --suite suites/qa.yaml
  agenteval run --environment "Finance Prod" --dataset-name qa --evaluators "Exact Match,Keyword Check" --tui`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return executeRun(ctx, cmd.OutOrStdout(), GetConfig(), runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.name, "name", "", "run name (default: suite name)")
	f.StringVar(&runOpts.envFile, "env-file", "", "environment config file (YAML or JSON)")
	f.StringVar(&runOpts.envName, "environment", "", "catalogue environment name or ID")
	f.StringVar(&runOpts.datasetPath, "dataset", "", "dataset file (JSON array or YAML list)")
	f.StringVar(&runOpts.datasetName, "dataset-name", "", "catalogue dataset name or ID")
	f.StringVar(&runOpts.suitePath, "suite", "", "evaluator suite file (YAML or JSON)")
	f.StringVar(&runOpts.suiteName, "suite-name", "", "suite name when evaluators come from the catalogue")
	f.StringSliceVar(&runOpts.evaluators, "evaluators", nil, "catalogue evaluator names or IDs")
	f.BoolVar(&runOpts.tui, "tui", false, "show live progress")
	f.IntVar(&runOpts.maxRows, "max-rows", 50, "limit the per-record table (0 for all)")
	f.String("export", "", "write the run as JSON to this file or directory")
	f.String("export-md", "", "write the run as Markdown to this file or directory")
	_ = viper.BindPFlag("export", f.Lookup("export"))
	_ = viper.BindPFlag("exportMarkdown", f.Lookup("export-md"))

	rootCmd.AddCommand(runCmd)
}

func executeRun(ctx context.Context, out io.Writer, cfg *appconfig.Config, opts runOptions) error {
	req, err := buildRequest(cfg, opts)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	agg := metrics.NewAggregator()
	pipelineOpts := []pipeline.Option{
		pipeline.WithClientFactory(clientFactory(cfg)),
		pipeline.WithEvaluatorFactory(evaluatorFactory(cfg)),
		pipeline.WithConcurrency(cfg.WorkerCount()),
		pipeline.WithAggregator(agg),
	}

	var (
		run    *runs.Run
		runErr error
	)
	if opts.tui {
		logging.SetConsole(false)
		defer logging.SetConsole(true)
		title := fmt.Sprintf("%s · %s", req.Name, req.Environment.AgentName)
		run, runErr = tui.Run(ctx, title, out, func(ctx context.Context, obs pipeline.Observer) (*runs.Run, error) {
			p, err := pipeline.New(store, append(pipelineOpts, pipeline.WithObserver(obs))...)
			if err != nil {
				return nil, err
			}
			return p.Execute(ctx, req)
		})
	} else {
		p, err := pipeline.New(store, pipelineOpts...)
		if err != nil {
			return err
		}
		run, runErr = p.Execute(ctx, req)
	}

	if len(agg.Snapshot()) > 0 {
		if err := agg.Save(cfg.MetricsPath()); err != nil {
			logging.LogEvent("[RUN] Could not save latency metrics: %v", err)
		}
	}
	if run == nil {
		return runErr
	}

	if err := report.Write(out, run, report.Options{MaxRows: opts.maxRows}); err != nil {
		return err
	}
	if err := exportRun(out, run, cfg.ExportPath, cfg.ExportMarkdownPath); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// buildRequest resolves the environment, dataset and suite from files or the
// catalogue.
func buildRequest(cfg *appconfig.Config, opts runOptions) (pipeline.Request, error) {
	req := pipeline.Request{Name: opts.name}

	var cat *catalog.Catalog
	catalogue := func() (*catalog.Catalog, error) {
		if cat != nil {
			return cat, nil
		}
		c, err := loadCatalog(cfg)
		cat = c
		return c, err
	}

	switch {
	case opts.envFile != "":
		env, err := environment.LoadConfig(opts.envFile)
		if err != nil {
			return req, err
		}
		req.Environment = env
		req.EnvironmentName = opts.envName
		if req.EnvironmentName == "" {
			req.EnvironmentName = strings.TrimSuffix(filepath.Base(opts.envFile), filepath.Ext(opts.envFile))
		}
	case opts.envName != "":
		c, err := catalogue()
		if err != nil {
			return req, err
		}
		def, err := c.Environment(opts.envName)
		if err != nil {
			return req, err
		}
		req.Environment = def.Config
		req.EnvironmentName = def.Name
	default:
		return req, errors.New("an environment is required: use --env-file or --environment")
	}

	switch {
	case opts.datasetPath != "":
		req.DatasetPath = opts.datasetPath
	case opts.datasetName != "":
		c, err := catalogue()
		if err != nil {
			return req, err
		}
		def, err := c.Dataset(opts.datasetName)
		if err != nil {
			return req, err
		}
		req.DatasetPath = def.FilePath
		req.DatasetName = def.Name
	default:
		return req, errors.New("a dataset is required: use --dataset or --dataset-name")
	}

	switch {
	case opts.suitePath != "" && len(opts.evaluators) > 0:
		return req, errors.New("use either --suite or --evaluators, not both")
	case opts.suitePath != "":
		suite, err := evaluator.LoadSuite(opts.suitePath)
		if err != nil {
			return req, err
		}
		req.Suite = suite
	case len(opts.evaluators) > 0:
		c, err := catalogue()
		if err != nil {
			return req, err
		}
		name := opts.suiteName
		if name == "" {
			name = "catalog"
		}
		suite, err := c.ResolveSuite(name, opts.evaluators)
		if err != nil {
			return req, err
		}
		req.Suite = suite
	default:
		return req, errors.New("evaluators are required: use --suite or --evaluators")
	}
	return req, nil
}

// exportRun writes the requested exports. A target that is an existing
// directory or ends in a separator gets a generated file name.
func exportRun(out io.Writer, run *runs.Run, jsonTarget, mdTarget string) error {
	if jsonTarget != "" {
		path := exportPath(jsonTarget, report.ExportName(run, "json"))
		if err := report.ExportJSON(path, run); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported JSON to %s\n", path)
	}
	if mdTarget != "" {
		path := exportPath(mdTarget, report.ExportName(run, "md"))
		if err := report.ExportMarkdown(path, run); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported Markdown to %s\n", path)
	}
	return nil
}

func exportPath(target, name string) string {
	if strings.HasSuffix(target, "/") || strings.HasSuffix(target, string(filepath.Separator)) {
		return filepath.Join(target, name)
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return filepath.Join(target, name)
	}
	return target
}
