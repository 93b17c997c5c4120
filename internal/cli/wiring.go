// internal/cli/wiring.go
package agenteval

import (
	"context"
	"fmt"

	"github.com/mwiater/agenteval/internal/appconfig"
	"github.com/mwiater/agenteval/internal/catalog"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/pipeline"
	"github.com/mwiater/agenteval/internal/runs"
	"github.com/mwiater/agenteval/internal/runs/local"
	"github.com/mwiater/agenteval/internal/runs/mysql"
)

// openStore returns the run store selected by the configuration.
func openStore(ctx context.Context, cfg *appconfig.Config) (runs.Store, error) {
	switch cfg.StoreBackend() {
	case appconfig.StoreBackendMySQL:
		return mysql.Open(ctx, cfg.Store.DSN, cfg.Store.TablePrefix)
	case appconfig.StoreBackendLocal:
		return local.New(cfg.StoreDir())
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

// evaluatorFactory builds evaluators with the configured scoring services and
// a file-backed review queue.
func evaluatorFactory(cfg *appconfig.Config) *evaluator.Factory {
	return evaluator.NewFactory(evaluator.Dependencies{
		ScoringBackend: cfg.ScoringBackend,
		ScoringToken:   cfg.ScoringToken,
		CustomServices: cfg.CustomServices,
		ReviewQueue:    evaluator.NewFileQueue(cfg.ReviewQueuePath()),
		Timeout:        cfg.RequestTimeout(),
	})
}

// clientFactory builds agent clients against the configured gateway.
func clientFactory(cfg *appconfig.Config) pipeline.ClientFactory {
	return func(env environment.Config) (environment.Client, error) {
		return environment.NewClient(env, environment.Options{
			Gateway: cfg.GatewayHost(),
			Token:   cfg.AgentToken,
			Timeout: cfg.RequestTimeout(),
		})
	}
}

// loadCatalog reads the configured catalogue; a missing file is empty.
func loadCatalog(cfg *appconfig.Config) (*catalog.Catalog, error) {
	c, err := catalog.Load(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogPath(), err)
	}
	return c, nil
}
