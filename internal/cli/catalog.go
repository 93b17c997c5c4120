// internal/cli/catalog.go
package agenteval

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwiater/agenteval/internal/catalog"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/util"
)

var catalogOpts struct {
	name        string
	description string
	path        string
}

// catalogCmd groups commands that manage named evaluators, environments and
// datasets.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage catalogued evaluators, environments and datasets",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogue entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCatalog(GetConfig())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Evaluators:")
		for _, d := range c.Evaluators {
			fmt.Fprintf(out, "  %-24s %-28s %-18s %s\n", d.ID, util.TruncateRunes(d.Name, 28), d.Type, d.Category)
		}
		fmt.Fprintln(out, "Environments:")
		for _, d := range c.Environments {
			fmt.Fprintf(out, "  %-24s %-28s %s\n", d.ID, util.TruncateRunes(d.Name, 28), d.AgentName)
		}
		fmt.Fprintln(out, "Datasets:")
		for _, d := range c.Datasets {
			fmt.Fprintf(out, "  %-24s %-28s %s\n", d.ID, util.TruncateRunes(d.Name, 28), d.FilePath)
		}
		return nil
	},
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed <suite>",
	Short: "Seed the evaluator catalogue from a suite file when it is empty",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		suite, err := evaluator.LoadSuite(args[0])
		if err != nil {
			return err
		}
		c, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		n, err := c.SeedEvaluators(suite)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Catalogue already has evaluators; nothing seeded.")
			return nil
		}
		if err := c.Save(cfg.CatalogPath()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d evaluators into %s\n", n, cfg.CatalogPath())
		return nil
	},
}

var catalogAddEnvironmentCmd = &cobra.Command{
	Use:   "add-environment <env-file>",
	Short: "Catalogue an environment config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := environment.LoadConfig(args[0])
		if err != nil {
			return err
		}
		name := catalogOpts.name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		return updateCatalog(cmd, func(c *catalog.Catalog) (string, error) {
			def, err := c.AddEnvironment(catalog.EnvironmentDef{Name: name, Config: env})
			return def.ID, err
		})
	},
}

var catalogAddDatasetCmd = &cobra.Command{
	Use:   "add-dataset <dataset-file>",
	Short: "Catalogue a dataset file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := catalogOpts.name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		return updateCatalog(cmd, func(c *catalog.Catalog) (string, error) {
			def, err := c.AddDataset(catalog.DatasetDef{Name: name, Description: catalogOpts.description, FilePath: args[0]})
			return def.ID, err
		})
	},
}

func updateCatalog(cmd *cobra.Command, add func(*catalog.Catalog) (string, error)) error {
	cfg := GetConfig()
	c, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	id, err := add(c)
	if err != nil {
		return err
	}
	if err := c.Save(cfg.CatalogPath()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", id, cfg.CatalogPath())
	return nil
}

func init() {
	for _, c := range []*cobra.Command{catalogAddEnvironmentCmd, catalogAddDatasetCmd} {
		c.Flags().StringVar(&catalogOpts.name, "name", "", "display name (default: file name)")
	}
	catalogAddDatasetCmd.Flags().StringVar(&catalogOpts.description, "description", "", "dataset description")

	catalogCmd.AddCommand(catalogListCmd, catalogSeedCmd, catalogAddEnvironmentCmd, catalogAddDatasetCmd)
	rootCmd.AddCommand(catalogCmd)
}
