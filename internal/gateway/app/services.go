package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"codementor/internal/agent"
	"codementor/internal/analyzer"
	"codementor/internal/gateway/config"
	"codementor/internal/llm"
	"codementor/internal/orchestrator"
	"codementor/internal/sandbox"
)

// Services is the wired core: orchestrator plus the resources it owns.
type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Pool         *sandbox.Pool

	closers []func() error
}

// NewServices wires cache, LLM, agents and the sandbox pool from cfg. A missing API
// credential is not fatal: agent-backed intents then answer FAILED in-band.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	cache, closeCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	s := &Services{closers: []func() error{closeCache}}

	client, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		RPS:      cfg.LLM.RPS,
		Burst:    cfg.LLM.Burst,
		Timeout:  cfg.LLM.Timeout,
	})
	switch {
	case errors.Is(err, llm.ErrNoCredential):
		log.Printf("warning: no API key for LLM provider %q; agent calls will fail", cfg.LLM.Provider)
		client = nil
	case err != nil:
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	default:
		log.Printf("llm client: %s", client.Name())
		s.closers = append(s.closers, client.Close)
	}
	gw := agent.NewGateway(client, cfg.LLM.Timeout)

	exec := sandbox.NewExecutor(sandbox.Config{
		Root:           cfg.Sandbox.Root,
		Timeout:        cfg.Sandbox.Timeout,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
	})
	s.Pool = sandbox.NewPool(exec, cfg.Sandbox.Workers)
	log.Printf("sandbox pool: %d workers, timeout %s", s.Pool.Workers(), exec.Timeout())

	s.Orchestrator = orchestrator.New(orchestrator.Deps{
		Cache:              cache,
		Analyzer:           analyzer.NewHeuristic(),
		Sandbox:            s.Pool,
		Reviewer:           gw,
		Security:           gw,
		Debugger:           gw,
		Chatter:            gw,
		CacheTTL:           cfg.Cache.TTL,
		DefaultTestCommand: cfg.Sandbox.DefaultTestCommand,
	})
	return s, nil
}

// Close stops the sandbox pool and releases backends, in reverse order of creation.
func (s *Services) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
