package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"codementor/internal/gateway/config"
	"codementor/internal/gateway/handler"
	"codementor/internal/gateway/middleware"
	"codementor/internal/gateway/server"
)

type App struct {
	server   *server.Server
	services *Services
	handler  http.Handler
}

func New(ctx context.Context, args []string) (*App, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	services, err := NewServices(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Routing & Server
	mux := http.NewServeMux()
	handler.New(services.Orchestrator, nil).Register(mux)
	h := middleware.Logging(nil)(middleware.CORS(cfg.CORSOrigins)(mux))

	return &App{
		server:   server.New(cfg.Port, h),
		services: services,
		handler:  h,
	}, nil
}

// Handler is the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	return errors.Join(a.server.Shutdown(ctx), a.services.Close())
}
