package main

import (
	"os"
	"os/signal"
	"syscall"

	"tradecouncil/internal/bootstrap"
	"tradecouncil/pkg/logger"
)

func main() {
	container := bootstrap.NewContainer()
	container.MustInit()
	defer logger.Sync()

	if err := container.Start(); err != nil {
		container.Log.Errorf("Failed to start: %v", err)
		container.Shutdown()
		os.Exit(1)
	}

	waitForShutdown(container)
}

// waitForShutdown blocks until a signal arrives or a component cancels the application context
func waitForShutdown(c *bootstrap.Container) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.Log.Infow("Shutdown signal received", "signal", sig.String())
	case <-c.Context.Done():
		c.Log.Warn("Application context cancelled")
	}

	c.Shutdown()
}
