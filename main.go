package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/psxtools/psupd/internal/config"
	"github.com/psxtools/psupd/internal/fetcher"
	"github.com/psxtools/psupd/internal/job"
	"github.com/psxtools/psupd/internal/logger"
	"github.com/psxtools/psupd/internal/manager"
	"github.com/psxtools/psupd/internal/repository"
	"github.com/psxtools/psupd/internal/tui"
	protohttp "github.com/psxtools/psupd/pkg/protocol/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	configDir, err := config.Dir()
	if err != nil {
		fmt.Printf("Error creating config directory: %v\n", err)
		os.Exit(1)
	}

	err = logger.InitLogging(cfg.Debug, filepath.Join(configDir, "psupd.log"))
	if err != nil {
		fmt.Printf("Warning: Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	repo, err := repository.NewBoltRepository(filepath.Join(configDir, "history.db"))
	if err != nil {
		logger.Errorf("Error opening history store: %v", err)
		os.Exit(1)
	}
	defer repo.Close()

	client := protohttp.NewClient(protohttp.DefaultConfig())

	f := fetcher.New(client, fetcher.WithTimeout(cfg.RequestTimeout))

	go func() {
		if !f.CheckServerStatus(context.Background()) {
			logger.Warnf("Update server is not reachable, lookups may fail")
		}
	}()

	mgr := manager.New(client, job.Config{
		Parts:       cfg.Parts,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		MinPartSize: cfg.MinPartSize,
		ThrottleBps: cfg.ThrottleSpeed,
	}, repo)

	// Graceful shutdown on Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Infof("Received interrupt signal, shutting down...")
		mgr.Shutdown(10 * time.Second)
		os.Exit(1)
	}()

	// Run the TUI. This is a blocking call.
	err = tui.Run(f, mgr, cfg.DownloadDir)
	if err != nil {
		fmt.Printf("TUI Error: %v\n", err)
	}

	// Once the TUI exits (from 'q' or error), stop any running jobs.
	logger.Infof("TUI has exited. Shutting down download manager...")
	mgr.Shutdown(10 * time.Second)
	logger.Infof("Shutdown complete.")
}
