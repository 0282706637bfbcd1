package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/cogconvo/captioner/internal/api"
	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/logging"
	"github.com/cogconvo/captioner/internal/storage"
)

// openStorage creates and initializes the configured recording backend.
func openStorage() (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()
	zlog := logging.NewZerolog(logOutput(), viper.GetString("logLevel"), "storage")

	backend, err := storage.NewBackend(storageCfg, Logger.With("component", "storage"), zlog)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "type", storageCfg.Type, "error", err)
		return nil, fmt.Errorf("initializing %s storage: %w", storageCfg.Type, err)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}

// newUploader returns the dashboard client when uploads are enabled.
func newUploader() *api.Client {
	cfg := config.GetUploadConfig()
	if !cfg.Enabled {
		return nil
	}
	return api.New(cfg.URL, cfg.Secret)
}
