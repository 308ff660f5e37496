// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/sessiond/internal/config"
	"github.com/ManuGH/sessiond/internal/log"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.Sessions.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Sessions.JournalPath), 0o700); err != nil {
		return fmt.Errorf("journal directory: %w", err)
	}
	if err := checkEngine(logger, cfg.Engine); err != nil {
		return fmt.Errorf("engine check failed: %w", err)
	}
	checkAdvisories(logger, cfg)

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}

func checkEngine(logger zerolog.Logger, cfg config.EngineConfig) error {
	if cfg.Kind != config.EngineBridge {
		logger.Warn().Str("engine", cfg.Kind).Msg("using the simulated engine; no real chat sessions will be created")
		return nil
	}
	bin, err := exec.LookPath(cfg.Command)
	if err != nil {
		return fmt.Errorf("bridge command not found (%s): %w", cfg.Command, err)
	}
	logger.Info().Str("command", bin).Msg("bridge command available")
	return nil
}

// checkAdvisories logs configurations that work but are probably unintended.
func checkAdvisories(logger zerolog.Logger, cfg config.AppConfig) {
	switch {
	case cfg.API.AllowAnonymous:
		logger.Warn().Msg("API accepts anonymous requests; every tenant can control every session")
	case strings.TrimSpace(cfg.API.Key) == "":
		logger.Warn().Msg("no API key configured; all session requests will be refused")
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.Sessions.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.Sessions.DataDir).
			Msg("data directory is under temp; authenticated sessions may be lost on reboot")
	}
}
