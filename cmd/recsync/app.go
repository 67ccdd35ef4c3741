package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fentz26/recsync/internal/audit"
	"github.com/fentz26/recsync/internal/config"
	"github.com/fentz26/recsync/internal/connectors"
	"github.com/fentz26/recsync/internal/connectors/local"
	"github.com/fentz26/recsync/internal/connectors/remote"
	"github.com/fentz26/recsync/internal/controlplane"
	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/metrics"
	"github.com/fentz26/recsync/internal/store"
	"github.com/fentz26/recsync/internal/transport"
)

// app holds the components shared by the daemon and the in-process commands.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *store.Store
	pdr     *audit.PDRWriter
	metrics *metrics.Collector
	client  connectors.Client
	service *controlplane.Service
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Mode: cfg.Log.Mode, Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	s, err := store.New(cfg.Database)
	if err != nil {
		return nil, err
	}

	m := metrics.NewCollector(nil)
	client, err := newClient(cfg, s, log, m)
	if err != nil {
		s.Close()
		return nil, err
	}

	pdr := audit.NewPDRWriter(s)
	service := controlplane.NewService(s, pdr, client, controlplane.Options{
		Fetch:      cfg.Fetch,
		Algorithms: cfg.Algorithms,
	}, log, m)

	return &app{cfg: cfg, log: log, store: s, pdr: pdr, metrics: m, client: client, service: service}, nil
}

// newClient picks the recommendation service implementation for the
// configured mode.
func newClient(cfg *config.Config, s *store.Store, log *logger.Logger, m *metrics.Collector) (connectors.Client, error) {
	if cfg.Client.Mode != config.ModeReal {
		return local.New(s, nil, log), nil
	}
	t, err := transport.New(transport.Config{
		BaseURL:      cfg.Client.BaseURL,
		Token:        cfg.Client.Token,
		ClientID:     cfg.Client.ClientID,
		ClientSecret: cfg.Client.ClientSecret,
		TokenURL:     cfg.Client.TokenURL,
		Timeout:      cfg.Client.Timeout,
		MaxBatch:     cfg.Client.MaxBatch,
	}, log, m)
	if err != nil {
		return nil, err
	}
	return remote.New(t), nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("close database", "error", err)
	}
	a.log.Sync()
}
