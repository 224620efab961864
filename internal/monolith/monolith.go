// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"net/http"

	"github.com/predikt/arb-agent/internal/config"
	"github.com/predikt/arb-agent/internal/di"
	"github.com/predikt/arb-agent/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	HTTPClient() *http.Client
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config     *config.Config
	logger     logger.LoggerInterface
	httpClient *http.Client
	container  di.Container
}

// New creates a new Monolith instance. There is no chain client in this
// domain; the only process-wide shared resource besides config/logger is a
// plain HTTP client reused by venue clients that don't need their own
// connection pool tuning.
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	httpClient := &http.Client{Timeout: cfg.App.DefaultTimeout}

	container := di.NewContainer()

	container.Register("config", func(di.ServiceRegistry) any { return cfg })
	container.Register("logger", func(di.ServiceRegistry) any { return log })
	container.Register("httpClient", func(di.ServiceRegistry) any { return httpClient })

	return &app{
		config:     cfg,
		logger:     log,
		httpClient: httpClient,
		container:  container,
	}, nil
}

func (a *app) Config() *config.Config { return a.config }

func (a *app) Logger() logger.LoggerInterface { return a.logger }

func (a *app) HTTPClient() *http.Client { return a.httpClient }

func (a *app) Services() di.ServiceRegistry { return a.container }

// Container returns the DI container for module registration.
func (a *app) Container() di.Container { return a.container }

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all resources.
func (a *app) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}
