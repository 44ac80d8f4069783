package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/handlers"
)

// ServerDependencies holds all dependencies needed for the server
type ServerDependencies struct {
	ServerConfig config.ServerConfig
	// Site serves every path of the application under test.
	Site   http.Handler
	Logger *log.Logger
}

// BuildServerDependencies creates the served application from the harness
// configuration so that it shares sandbox root and storage with test runs.
func BuildServerDependencies(cfg *config.HarnessConfig, server config.ServerConfig, logger *log.Logger) (ServerDependencies, error) {
	site, err := handlers.NewSite(handlers.SiteConfig{
		SandboxRoot:     cfg.SandboxRoot,
		DefaultSitePath: cfg.OriginalSite,
		Storage:         storageInfo(cfg),
		BasePath:        cfg.NormalizedBasePath(),
		Logger:          logger,
	})
	if err != nil {
		return ServerDependencies{}, fmt.Errorf("failed to create site: %w", err)
	}
	return ServerDependencies{ServerConfig: server, Site: site, Logger: logger}, nil
}

// RunServe starts the web server and blocks until it is shut down
func RunServe(deps ServerDependencies) error {
	listener, server, err := StartServer(deps)
	if err != nil {
		return err
	}
	defer listener.Close()

	grace := time.Duration(deps.ServerConfig.ShutdownGrace) * time.Second
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return WaitForShutdownWithTimeout(server, nil, grace, deps.logger())
}

func (d ServerDependencies) logger() *log.Logger {
	if d.Logger == nil {
		return log.Default()
	}
	return d.Logger
}

// StartServer creates and starts the HTTP server, returning the listener and server
func StartServer(deps ServerDependencies) (net.Listener, *http.Server, error) {
	if deps.Site == nil {
		return nil, nil, errors.New("no site to serve")
	}
	logger := deps.logger()

	addr := fmt.Sprintf(":%s", deps.ServerConfig.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create listener: %w", err)
	}

	server := &http.Server{
		Handler:           deps.Site,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	return listener, server, nil
}

// WaitForShutdown waits for a shutdown signal and gracefully shuts down the server
// If shutdown channel is nil, a new channel will be created and registered with signal.Notify
func WaitForShutdown(server *http.Server, shutdown chan os.Signal) error {
	return WaitForShutdownWithTimeout(server, shutdown, 30*time.Second, log.Default())
}

// WaitForShutdownWithTimeout allows specifying a custom shutdown timeout (primarily for testing)
func WaitForShutdownWithTimeout(server *http.Server, shutdown chan os.Signal, shutdownTimeout time.Duration, logger *log.Logger) error {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	}

	sig := <-shutdown
	logger.Info("shutting down server", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		// http.Server.Close does not propagate listener close errors, so a
		// failure of both is not reachable in practice.
		if err := server.Close(); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}
