package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/basket/warden/internal/backend"
	"github.com/basket/warden/internal/config"
	"github.com/basket/warden/internal/gitops"
	"github.com/basket/warden/internal/manager"
	"github.com/basket/warden/internal/secrets"
	"github.com/basket/warden/internal/store"
	"github.com/basket/warden/internal/telemetry"
)

// app wires config, logging, the record store and both backends into
// one Manager. Every subcommand builds one and closes it on exit.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *store.Store
	manager   *manager.Manager
	container *backend.ContainerBackend

	logCloser io.Closer
}

// newApp assembles the full stack. quiet sends logs to the file only,
// keeping stdout clean for commands that own the terminal.
func newApp(quiet bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quiet)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	session := backend.NewSessionBackend(backend.SessionConfig{
		Command:         cfg.Assistant.Command,
		SkipPermissions: cfg.Assistant.SkipPermissions,
		AcceptPrompt:    cfg.Assistant.AcceptPrompt,
		AcceptAttempts:  cfg.Assistant.AcceptAttempts,
		AcceptInterval:  time.Duration(cfg.Assistant.AcceptIntervalMS) * time.Millisecond,
	}, logger)

	container, err := backend.NewContainerBackend(backend.ContainerConfig{
		Image:           cfg.Container.Image,
		MemoryMB:        cfg.Container.MemoryMB,
		CPUs:            cfg.Container.CPUs,
		PidsLimit:       cfg.Container.PidsLimit,
		Network:         cfg.Container.Network,
		APIKeyName:      cfg.Container.APIKeyEnv,
		Command:         cfg.Assistant.Command,
		SkipPermissions: cfg.Assistant.SkipPermissions,
	}, secrets.Get, logger)
	if err != nil {
		st.Close()
		logCloser.Close()
		return nil, fmt.Errorf("container backend: %w", err)
	}

	backends := map[store.BackendKind]backend.Runtime{
		store.BackendSession:   session,
		store.BackendContainer: container,
	}

	mgr, err := manager.New(st, gitops.New(logger), backends, backend.NewDashboard(logger), manager.Options{
		BaseDir:        cfg.AgentsDir,
		DefaultBackend: cfg.DefaultBackend(),
		Logger:         logger,
	})
	if err != nil {
		container.Close()
		st.Close()
		logCloser.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		manager:   mgr,
		container: container,
		logCloser: logCloser,
	}, nil
}

func (a *app) Close() {
	a.container.Close()
	a.store.Close()
	a.logCloser.Close()
}
