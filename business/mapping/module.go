// Package mapping implements the mapping bounded context: the reloadable
// cross-venue identity table backing CrossVenue's exact-match path.
package mapping

import (
	"context"

	mapp "github.com/predikt/arb-agent/business/mapping/app"
	mappingDI "github.com/predikt/arb-agent/business/mapping/di"
	"github.com/predikt/arb-agent/business/mapping/infra"
	"github.com/predikt/arb-agent/internal/config"
	"github.com/predikt/arb-agent/internal/di"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/monolith"
)

// Module implements the mapping bounded context.
type Module struct{}

// RegisterServices binds the Mapping service, lazily constructed from the
// configured mapping file path.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, mappingDI.Mapping, func(sr di.ServiceRegistry) *mapp.Mapping {
		cfg := di.MustGet[*config.Config](sr, "config")
		log := di.MustGet[logger.LoggerInterface](sr, "logger")
		store := infra.NewFileStore(cfg.Arb.MappingFilePath)
		return mapp.New(store, log)
	})
	return nil
}

// Startup performs the initial load of the mapping table; a failure here
// is non-fatal, since CrossVenue still has the Jaccard fallback.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mapping := di.MustGet[*mapp.Mapping](mono.Services(), mappingDI.Mapping)
	if err := mapping.Reload(ctx); err != nil {
		mono.Logger().Warn(ctx, "mapping: initial load failed, starting with empty table", "err", err)
	}
	return nil
}
