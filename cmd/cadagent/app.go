package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/artifact"
	"github.com/inspirepan/cadagent/autodim"
	"github.com/inspirepan/cadagent/cad"
	"github.com/inspirepan/cadagent/internal/audit"
	"github.com/inspirepan/cadagent/internal/config"
	"github.com/inspirepan/cadagent/internal/history"
	"github.com/inspirepan/cadagent/providers"
)

// app wires the configured provider, CAD tools, audit log and auto-dimension
// hook together.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	provider cadagent.Provider
	registry *cadagent.Registry
	invoker  *cadagent.Invoker
	trigger  *autodim.Trigger
	audit    *audit.Log
	store    *history.Store
}

// newApp builds the app from cfg. A nil provider is constructed from the
// provider section.
func newApp(cfg *config.Config, logger *zap.Logger, provider cadagent.Provider) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider == nil {
		p, err := providers.New(cfg.Provider.Name, cfg.Provider.Model, cfg.Provider.BaseConfig())
		if err != nil {
			return nil, err
		}
		provider = p
	}

	client := &cad.Client{
		Executable: cfg.CAD.Executable,
		Endpoint:   cfg.CAD.Endpoint,
		Timeout:    cfg.CAD.GetCommandTimeout(),
		Logger:     logger.Named("cad"),
	}
	registry, err := cadagent.NewRegistry(cad.Tools(client, cfg.CAD.ArtifactDir)...)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(cfg.Audit.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		registry: registry,
		audit:    auditLog,
		invoker: &cadagent.Invoker{
			Audit:   auditLog,
			Logger:  logger.Named("invoker"),
			Timeout: cfg.Dialog.GetToolTimeout(),
		},
	}

	if cfg.AutoDim.Enabled {
		sub, err := autodim.SubRegistry(registry, cfg.AutoDim.ShareRegistry, cad.DimensionToolNames...)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.trigger = &autodim.Trigger{
			Provider: provider,
			Registry: sub,
			Invoker:  a.invoker,
			Exchange: &artifact.Exchange{
				PollInterval: cfg.AutoDim.GetPollInterval(),
				Timeout:      cfg.AutoDim.GetWaitTimeout(),
				Logger:       logger.Named("artifact"),
			},
			Sentinel:      cfg.AutoDim.Sentinel,
			MaxRounds:     cfg.AutoDim.MaxRounds,
			WaitTimeout:   cfg.AutoDim.GetWaitTimeout(),
			TranscriptDir: cfg.AutoDim.TranscriptDir,
			Logger:        logger.Named("autodim"),
		}
	}
	return a, nil
}

// dialog returns a Dialog reporting progress to onEvent. Events of nested
// auto-dimension runs go to onNested.
func (a *app) dialog(onEvent, onNested func(cadagent.Event)) *cadagent.Dialog {
	d := &cadagent.Dialog{
		Provider:          a.provider,
		Registry:          a.registry,
		Invoker:           a.invoker,
		MaxRounds:         a.cfg.Dialog.MaxRounds,
		ParallelToolCalls: a.cfg.Dialog.ParallelToolCalls,
		ToolChoice:        cadagent.ToolChoice(a.cfg.Dialog.ToolChoice),
		OnEvent:           onEvent,
		Logger:            a.logger.Named("dialog"),
	}
	if a.trigger != nil {
		a.trigger.OnEvent = onNested
		d.Hooks = append(d.Hooks, a.trigger)
	}
	return d
}

func (a *app) systemPrompt() string {
	if a.cfg.Dialog.SystemPrompt != "" {
		return a.cfg.Dialog.SystemPrompt
	}
	return cad.SystemPrompt
}

// sessions opens the history store on first use.
func (a *app) sessions() (*history.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

func (a *app) Close() error {
	var firstErr error
	if a.store != nil {
		firstErr = a.store.Close()
		a.store = nil
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.audit = nil
	}
	return firstErr
}
