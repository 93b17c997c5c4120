// internal/cli/validate.go
package agenteval

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"github.com/mwiater/agenteval/internal/dataset"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/evaluator"
)

// validateCmd groups offline checks of input files.
var validateVerbose bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check suite, dataset and environment files without calling the agent",
}

var validateSuiteCmd = &cobra.Command{
	Use:   "suite <path>",
	Short: "Parse a suite and construct every evaluator in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		suite, err := evaluator.LoadSuite(args[0])
		if err != nil {
			return err
		}
		if err := checkSuite(evaluatorFactory(GetConfig()), suite); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Suite %q is valid: %d evaluators\n", suite.SuiteName, len(suite.Evaluators))
		if validateVerbose {
			pp.ColoringEnabled = false
			_, _ = pp.Fprintln(out, suite)
		}
		return nil
	},
}

var validateDatasetCmd = &cobra.Command{
	Use:   "dataset <path>",
	Short: "Parse a dataset file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := dataset.LoadFile(args[0])
		if err != nil {
			return err
		}
		withExpected := 0
		for _, r := range records {
			if r.Expected != nil {
				withExpected++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dataset is valid: %d records, %d with expected output\n", len(records), withExpected)
		return nil
	},
}

var validateEnvironmentCmd = &cobra.Command{
	Use:   "environment <path>",
	Short: "Parse an environment file and resolve its endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := environment.LoadConfig(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Environment is valid: %s\n", environment.EndpointURL(env, GetConfig().GatewayHost()))
		return nil
	},
}

// checkSuite builds every evaluator and reports all construction errors.
func checkSuite(factory *evaluator.Factory, suite evaluator.SuiteConfig) error {
	var result *multierror.Error
	for _, cfg := range suite.Evaluators {
		if _, err := factory.Create(cfg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func init() {
	validateSuiteCmd.Flags().BoolVar(&validateVerbose, "verbose", false, "dump the parsed suite")
	validateCmd.AddCommand(validateSuiteCmd, validateDatasetCmd, validateEnvironmentCmd)
	rootCmd.AddCommand(validateCmd)
}
